package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

const notificationCols = `id, task_id, payload, created_at, read_at, session_id`

func (r *Repo) InsertNotification(ctx context.Context, n *store.StoredNotification) error {
	if n.ID == uuid.Nil {
		n.ID = store.GenNewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO stored_notifications (`+notificationCols+`)
		VALUES (?,?,?,?,?,?)`),
		n.ID, n.TaskID, n.Payload, n.CreatedAt, n.ReadAt, n.SessionID,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// PullNotifications returns unread notifications for sessionID oldest first
// and marks them read. Pull-and-mark is two statements; a crash between them
// re-delivers, which beats losing the payload.
func (r *Repo) PullNotifications(ctx context.Context, sessionID string, limit int) ([]store.StoredNotification, error) {
	if limit <= 0 {
		limit = 50
	}
	var notes []store.StoredNotification
	err := r.db.SelectContext(ctx, &notes, r.rebind(
		`SELECT `+notificationCols+` FROM stored_notifications
		 WHERE session_id = ? AND read_at IS NULL
		 ORDER BY created_at ASC LIMIT ?`),
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("pull notifications: %w", err)
	}
	if len(notes) == 0 {
		return notes, nil
	}

	ids := make([]uuid.UUID, len(notes))
	now := time.Now().UTC()
	for i := range notes {
		ids[i] = notes[i].ID
		notes[i].ReadAt = &now
	}

	q, args, err := sqlx.In(`UPDATE stored_notifications SET read_at = ? WHERE id IN (?)`, now, ids)
	if err != nil {
		return nil, fmt.Errorf("build mark-read: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.rebind(q), args...); err != nil {
		return nil, fmt.Errorf("mark notifications read: %w", err)
	}
	return notes, nil
}
