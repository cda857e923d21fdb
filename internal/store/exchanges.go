package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

// Exchange is one prompt/response pair sent to a model provider.
type Exchange struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Stage     string    `json:"stage"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ExchangeLog writes exchanges as individual JSON files under a directory
// so a failed job can be inspected after the fact.
type ExchangeLog struct {
	dir string
}

// NewExchangeLog returns a log rooted at dir. The directory is created on
// first write.
func NewExchangeLog(dir string) *ExchangeLog {
	return &ExchangeLog{dir: dir}
}

// Dir returns the directory exchanges are written to.
func (l *ExchangeLog) Dir() string {
	return l.dir
}

// Save writes ex and returns the path of the new file.
func (l *ExchangeLog) Save(ex Exchange) (string, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", errors.Wrap(err, "create exchange dir")
	}
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now()
	}

	// Dashes instead of colons for filesystem compatibility; nanoseconds
	// keep parallel stages from colliding.
	name := ex.Timestamp.Format("2006-01-02T15-04-05.000000000")
	if ex.Stage != "" {
		name += "_" + ex.Stage
	}
	path := filepath.Join(l.dir, name+".json")

	data, err := json.MarshalIndent(ex, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrap(err, "write exchange")
	}
	return path, nil
}

// Latest returns the newest n saved exchanges, newest first.
func (l *ExchangeLog) Latest(n int) ([]Exchange, error) {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Exchange
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		e := entries[i]
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var ex Exchange
		if err := json.Unmarshal(data, &ex); err != nil {
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}
