// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/datachat/datatypes"
	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	conv/<user_id>/<session_id>                     -> convRecord
//	turn/<user_id>/<session_id>/<nanos>/<counter>   -> datatypes.Message
//
// The id components are percent-escaped so an id containing "/" cannot
// leak into another id's key space. Turn keys sort lexicographically in
// timestamp order because the nanos component is zero-padded; the
// counter keeps keys unique when two turns land on the same nanosecond.
type BadgerStore struct {
	db *badger.DB
}

// convRecord is the conversation metadata document.
type convRecord struct {
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
	MessageCount int       `json:"message_count"`
}

// badgerSlogger adapts slog to Badger's Logger interface.
type badgerSlogger struct{}

func (badgerSlogger) Errorf(format string, args ...interface{})   { slog.Error(fmt.Sprintf(format, args...)) }
func (badgerSlogger) Warningf(format string, args ...interface{}) { slog.Warn(fmt.Sprintf(format, args...)) }
func (badgerSlogger) Infof(format string, args ...interface{})    { slog.Debug(fmt.Sprintf(format, args...)) }
func (badgerSlogger) Debugf(format string, args ...interface{})   { slog.Debug(fmt.Sprintf(format, args...)) }

func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerSlogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewInMemoryBadgerStore opens an in-memory instance. Test use only.
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerSlogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Backend() string { return "badger" }

func (s *BadgerStore) Close() error { return s.db.Close() }

// escapeComponent makes a user or session id safe to embed between the
// "/" key separators. The escaping is injective: distinct ids can never
// produce colliding keys or overlapping prefixes, even when the raw id
// itself contains "/".
func escapeComponent(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, "/", "%2F")
}

func convKey(userID, sessionID string) []byte {
	return []byte(fmt.Sprintf("conv/%s/%s", escapeComponent(userID), escapeComponent(sessionID)))
}

func convPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("conv/%s/", escapeComponent(userID)))
}

func turnKey(userID, sessionID string, ts time.Time, counter int) []byte {
	return []byte(fmt.Sprintf("turn/%s/%s/%020d/%06d", escapeComponent(userID), escapeComponent(sessionID), ts.UnixNano(), counter))
}

func turnPrefix(userID, sessionID string) []byte {
	return []byte(fmt.Sprintf("turn/%s/%s/", escapeComponent(userID), escapeComponent(sessionID)))
}

func (s *BadgerStore) SaveTurn(ctx context.Context, turn datatypes.Turn) bool {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		record := convRecord{
			UserID:    turn.UserID,
			SessionID: turn.SessionID,
			Title:     GenerateTitle(turn.UserMessage),
			CreatedAt: turn.Timestamp,
		}
		item, err := txn.Get(convKey(turn.UserID, turn.SessionID))
		switch {
		case err == nil:
			// Existing conversation: the title never changes after creation.
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return fmt.Errorf("corrupt conversation record: %w", err)
			}
		case err != badger.ErrKeyNotFound:
			return err
		}

		record.LastUpdated = turn.Timestamp
		record.MessageCount++

		msgBytes, err := json.Marshal(turn.ToMessage())
		if err != nil {
			return err
		}
		if err := txn.Set(turnKey(turn.UserID, turn.SessionID, turn.Timestamp, record.MessageCount), msgBytes); err != nil {
			return err
		}
		recBytes, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(convKey(turn.UserID, turn.SessionID), recBytes)
	})
	if err != nil {
		slog.Error("Error saving conversation turn to Badger", "userId", turn.UserID, "sessionId", turn.SessionID, "error", err)
		return false
	}
	return true
}

func (s *BadgerStore) ListConversations(ctx context.Context, userID string, limit int) []datatypes.ConversationSummary {
	var summaries []datatypes.ConversationSummary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := convPrefix(userID)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record convRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				slog.Error("Skipping unreadable conversation record", "key", string(it.Item().Key()), "error", err)
				continue
			}
			title := record.Title
			if title == "" {
				title = untitledFallback
			}
			summaries = append(summaries, datatypes.ConversationSummary{
				SessionID:    record.SessionID,
				Title:        title,
				LastUpdated:  record.LastUpdated,
				MessageCount: record.MessageCount,
			})
		}
		return nil
	})
	if err != nil {
		slog.Error("Error listing conversations from Badger", "userId", userID, "error", err)
		return nil
	}
	sortSummaries(summaries)
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

func (s *BadgerStore) GetTurns(ctx context.Context, userID, sessionID string) []datatypes.Turn {
	var turns []datatypes.Turn
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := turnPrefix(userID, sessionID)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg datatypes.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				slog.Error("Skipping unreadable turn", "key", string(it.Item().Key()), "error", err)
				continue
			}
			turns = append(turns, msg.ToTurn(userID, sessionID))
		}
		return nil
	})
	if err != nil {
		slog.Error("Error reading turns from Badger", "userId", userID, "sessionId", sessionID, "error", err)
		return nil
	}
	// Keys already iterate in timestamp order; the sort makes the
	// ascending contract exact even for records written by older layouts.
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
	return turns
}

func (s *BadgerStore) DeleteConversation(ctx context.Context, userID, sessionID string) bool {
	// Turns and the conversation record are deleted in separate passes;
	// each is attempted even if the other fails. Partial failure leaves
	// the store in a recognized half-deleted state.
	turnsErr := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := turnPrefix(userID, sessionID)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
	if turnsErr != nil {
		slog.Error("Error deleting turns from Badger", "userId", userID, "sessionId", sessionID, "error", turnsErr)
	}

	convErr := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(convKey(userID, sessionID))
	})
	if convErr != nil {
		slog.Error("Error deleting conversation record from Badger", "userId", userID, "sessionId", sessionID, "error", convErr)
	}
	return turnsErr == nil && convErr == nil
}

// sortSummaries orders by last_updated descending with a deterministic
// session_id ascending tie-break for equal timestamps.
func sortSummaries(summaries []datatypes.ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].LastUpdated.Equal(summaries[j].LastUpdated) {
			return summaries[i].SessionID < summaries[j].SessionID
		}
		return summaries[i].LastUpdated.After(summaries[j].LastUpdated)
	})
}
