package gateway

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	collab "github.com/sermonsmith/collab"
	"github.com/sermonsmith/collab/applier"
)

// dispatch routes one decoded inbound event to its handler. Dispatch is a
// type switch over the closed event set; handlers never inspect event-name
// strings.
//
// Join is the only access-check point, so every other event requires the
// connection to already be a member of the channel it names.
func (g *Gateway) dispatch(ctx context.Context, conn *Conn, event collab.InboundEvent) error {
	if _, isJoin := event.(collab.JoinEvent); !isJoin {
		ch := event.Channel()
		if !g.registry.Joined(ch.Key(), conn) {
			return fmt.Errorf("user %s not joined to %s: %w",
				conn.principal.UserID, ch.Key(), collab.ErrPermissionDenied)
		}
	}

	switch e := event.(type) {
	case collab.JoinEvent:
		return g.handleJoin(ctx, conn, e)
	case collab.LeaveEvent:
		return g.handleLeave(ctx, conn, e)
	case collab.CursorEvent:
		return g.handleCursor(ctx, conn, e)
	case collab.BlockEditEvent:
		return g.handleBlockEdit(ctx, conn, e)
	case collab.BlockCreateEvent:
		return g.handleBlockCreate(ctx, conn, e)
	case collab.BlockDeleteEvent:
		return g.handleBlockDelete(ctx, conn, e)
	case collab.CommentAddEvent:
		return g.handleCommentAdd(ctx, conn, e)
	case collab.CommentResolveEvent:
		return g.handleCommentResolve(ctx, conn, e)
	default:
		// DecodeInbound only produces the cases above.
		return collab.ErrValidation
	}
}

func (g *Gateway) handleJoin(ctx context.Context, conn *Conn, e collab.JoinEvent) error {
	ch := e.Channel()
	kind, err := collab.KindFor(g.docs, ch.Kind)
	if err != nil {
		return err
	}

	snapshot, err := g.presence.Join(ctx, ch, kind, conn.principal, e.DisplayName)
	if err != nil {
		return err
	}

	g.registry.Add(ch.Key(), conn)

	payload, err := collab.EncodeSnapshot(*snapshot)
	if err != nil {
		glog.Errorf("gateway: encoding snapshot for %s: %v", ch.Key(), err)
		return nil
	}
	conn.trySend(payload)

	// The joiner gets the snapshot; everyone else gets the announcement.
	g.broadcaster.Announce(ch.Key(), collab.CollabParticipantJoined, conn.principal.UserID,
		participantData(conn.principal, e.DisplayName), conn)
	return nil
}

func (g *Gateway) handleLeave(ctx context.Context, conn *Conn, e collab.LeaveEvent) error {
	ch := e.Channel()
	if err := g.presence.Leave(ctx, ch, conn.principal.UserID); err != nil {
		return err
	}
	g.registry.Remove(ch.Key(), conn)

	g.broadcaster.Announce(ch.Key(), collab.CollabParticipantLeft, conn.principal.UserID,
		map[string]string{"userId": conn.principal.UserID}, conn)
	return nil
}

func (g *Gateway) handleCursor(ctx context.Context, conn *Conn, e collab.CursorEvent) error {
	ch := e.Channel()
	cursor := collab.CursorInfo{BlockID: e.BlockID, Offset: e.Offset}
	if err := g.presence.UpdateCursor(ctx, ch, conn.principal.UserID, cursor); err != nil {
		return err
	}

	// The mover never hears their own cursor.
	g.broadcaster.Announce(ch.Key(), collab.CollabCursorMoved, conn.principal.UserID, cursor, conn)
	return nil
}

func (g *Gateway) handleBlockEdit(ctx context.Context, conn *Conn, e collab.BlockEditEvent) error {
	ch := e.Channel()
	content, err := g.applier.ApplyEdit(ctx, ch, e.BlockID, e.Operation, conn.principal)
	if err != nil {
		return err
	}

	// Everyone, editor included, sees the authoritative content.
	g.broadcaster.Announce(ch.Key(), collab.CollabBlockUpdated, conn.principal.UserID,
		map[string]any{"blockId": e.BlockID, "content": content}, nil)
	return nil
}

func (g *Gateway) handleBlockCreate(ctx context.Context, conn *Conn, e collab.BlockCreateEvent) error {
	ch := e.Channel()
	block, err := g.applier.CreateBlock(ctx, ch, applier.CreateBlockInput{
		ParentID: e.ParentID,
		Type:     e.Type,
		Content:  e.Content,
		Order:    e.Order,
	}, conn.principal)
	if err != nil {
		return err
	}

	g.broadcaster.Announce(ch.Key(), collab.CollabBlockCreated, conn.principal.UserID, block, nil)
	return nil
}

func (g *Gateway) handleBlockDelete(ctx context.Context, conn *Conn, e collab.BlockDeleteEvent) error {
	ch := e.Channel()
	kind, err := collab.KindFor(g.docs, ch.Kind)
	if err != nil {
		return err
	}
	if err := g.applier.DeleteBlock(ctx, ch, kind, e.BlockID, conn.principal); err != nil {
		return err
	}

	g.broadcaster.Announce(ch.Key(), collab.CollabBlockDeleted, conn.principal.UserID,
		map[string]string{"blockId": e.BlockID}, nil)
	return nil
}

func (g *Gateway) handleCommentAdd(ctx context.Context, conn *Conn, e collab.CommentAddEvent) error {
	ch := e.Channel()
	kind, err := collab.KindFor(g.docs, ch.Kind)
	if err != nil {
		return err
	}
	comment, err := g.applier.AddComment(ctx, ch, kind, e.BlockID, e.Content, conn.principal)
	if err != nil {
		return err
	}

	g.broadcaster.Announce(ch.Key(), collab.CollabCommentAdded, conn.principal.UserID, comment, nil)
	return nil
}

func (g *Gateway) handleCommentResolve(ctx context.Context, conn *Conn, e collab.CommentResolveEvent) error {
	ch := e.Channel()
	comment, err := g.applier.ResolveComment(ctx, ch, e.CommentID, conn.principal)
	if err != nil {
		return err
	}

	g.broadcaster.Announce(ch.Key(), collab.CollabCommentResolved, conn.principal.UserID, comment, nil)
	return nil
}

func participantData(p collab.Principal, displayName string) collab.ParticipantInfo {
	if displayName == "" {
		displayName = p.DisplayName
	}
	return collab.ParticipantInfo{
		UserID:      p.UserID,
		DisplayName: displayName,
	}
}
