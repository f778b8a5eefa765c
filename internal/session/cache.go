// Package session keeps in-progress exam answers durable between runs and
// turns them into a submission.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/aceplus/internal/model"
)

// KeyPrefix starts every stored answer sheet key.
const KeyPrefix = "answers_"

// Retention applied on every start unless configured otherwise.
const (
	DefaultTTL       = 30 * 24 * time.Hour
	DefaultMaxSheets = 50
)

// Key is the storage key of an exam's answers.
func Key(examID string) string { return KeyPrefix + examID }

// Storage is the durable key-value state behind the cache.
type Storage interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
	DeleteState(key string) error
	ListStateKeys(prefix string) ([]string, error)
	PruneKeys(prefix string, ttl time.Duration, keep int) (int64, error)
}

// Answers maps a question's unique id to the chosen option.
type Answers map[string]model.OptionKey

// Cache stores one answer sheet per exam id. Writes for the same exam are
// serialized so each merge sees the previous one.
type Cache struct {
	mu      sync.Mutex
	storage Storage
}

// NewCache returns a Cache over storage.
func NewCache(storage Storage) *Cache {
	return &Cache{storage: storage}
}

// RecordAnswer sets the answer for one question and persists the whole sheet.
// Answering the same question again replaces the previous choice.
func (c *Cache) RecordAnswer(examID, questionID string, option model.OptionKey) error {
	if examID == "" || questionID == "" {
		return fmt.Errorf("exam id and question id are required")
	}
	if !option.Valid() {
		return fmt.Errorf("invalid option %q", option)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	answers, err := c.load(examID)
	if err != nil {
		// Writing now would replace the stored sheet with this one answer.
		return fmt.Errorf("read answers for %s: %w", examID, err)
	}
	answers[questionID] = option
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	if err := c.storage.SetState(Key(examID), string(data)); err != nil {
		return fmt.Errorf("save answers for %s: %w", examID, err)
	}
	return nil
}

// LoadAnswers returns the stored sheet, or an empty one when nothing usable
// is stored or the storage cannot be read.
func (c *Cache) LoadAnswers(examID string) Answers {
	c.mu.Lock()
	defer c.mu.Unlock()
	answers, err := c.load(examID)
	if err != nil {
		slog.Warn("read cached answers", "exam_id", examID, "error", err)
		return make(Answers)
	}
	return answers
}

// load treats a missing or corrupt sheet as empty. Storage errors are returned.
func (c *Cache) load(examID string) (Answers, error) {
	answers := make(Answers)
	raw, err := c.storage.GetState(Key(examID))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return answers, nil
	}
	var stored map[string]string
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		slog.Warn("discarding corrupt cached answers", "exam_id", examID, "error", err)
		return answers, nil
	}
	for id, opt := range stored {
		if k := model.OptionKey(opt); k.Valid() {
			answers[id] = k
		}
	}
	return answers, nil
}

// Clear removes the exam's sheet.
func (c *Cache) Clear(examID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.DeleteState(Key(examID))
}

// Exams lists the exam ids that have a saved sheet, most recently written first.
func (c *Cache) Exams() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, err := c.storage.ListStateKeys(KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list answer sheets: %w", err)
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = strings.TrimPrefix(k, KeyPrefix)
	}
	return ids, nil
}

// Prune drops sheets not written within ttl and keeps at most max of the
// most recently written ones. Zero disables either bound.
func (c *Cache) Prune(ttl time.Duration, max int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.PruneKeys(KeyPrefix, ttl, max)
}
