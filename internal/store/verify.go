package store

import (
	"context"
	"fmt"
)

// Verification compares a session's recorded digest with the digest of
// the trace currently stored for it.
type Verification struct {
	SessionID string `json:"session_id"`
	Recorded  string `json:"recorded"`
	Computed  string `json:"computed"`
	Events    int    `json:"events"`
}

// Finished reports whether the session has a recorded digest.
func (v Verification) Finished() bool { return v.Recorded != "" }

// Match reports whether the stored trace still hashes to the recorded
// digest.
func (v Verification) Match() bool { return v.Finished() && v.Recorded == v.Computed }

// VerifySession recomputes the trace digest of a stored session.
func (s *Store) VerifySession(ctx context.Context, sessionID string) (Verification, error) {
	info, err := s.ReadSession(ctx, sessionID)
	if err != nil {
		return Verification{}, fmt.Errorf("verify session: %w", err)
	}
	events, err := s.ReadTrace(ctx, sessionID)
	if err != nil {
		return Verification{}, fmt.Errorf("verify session: %w", err)
	}
	digest, err := traceDigest(events)
	if err != nil {
		return Verification{}, fmt.Errorf("verify session: %w", err)
	}
	return Verification{
		SessionID: sessionID,
		Recorded:  info.Digest,
		Computed:  digest,
		Events:    len(events),
	}, nil
}

// LastSeq returns the highest seq stored for a session, or 0.
func (s *Store) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM trace_events WHERE session_id = ?
	`, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
