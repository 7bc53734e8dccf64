// Package audit keeps a tamper-evident JSONL journal of security events and
// intruder attempts. Each line carries the hash of the previous line.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/jsonutil"
	"github.com/securelock/securelock/pkg/model"
)

// maxLine bounds a single journal line.
const maxLine = 1 << 20

// FileAppender appends audit records to a JSONL file with hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path, now: time.Now}
}

// Path returns the journal location.
func (a *FileAppender) Path() string { return a.path }

// AppendEvent journals a security event.
func (a *FileAppender) AppendEvent(_ context.Context, e *model.SecurityEvent) error {
	return a.append(&model.AuditRecord{
		Kind:     model.JournalEvent,
		DeviceID: e.DeviceID,
		Event:    e,
	})
}

// AppendAttempt journals an intruder attempt.
func (a *FileAppender) AppendAttempt(_ context.Context, at *model.IntruderAttempt) error {
	return a.append(&model.AuditRecord{
		Kind:     model.JournalAttempt,
		DeviceID: at.DeviceID,
		Attempt:  at,
	})
}

func (a *FileAppender) append(record *model.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0700); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	record.Timestamp = a.now().UTC()
	record.PrevHash = prevHash
	recordHash, err := computeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	record.RecordHash = recordHash

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}

	return nil
}

// LastRecordHash returns the hash of the last record in the log.
func (a *FileAppender) LastRecordHash() (model.HashValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	return lastRecordHash(file)
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	scanner := newScanner(file)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue // Verify reports malformed lines
		}
		lastHash = record.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}

	return lastHash, nil
}

// Verify walks the journal and checks every record hash and link.
// It returns the number of intact records. A missing journal verifies as
// empty. Any mismatch or unparsable line yields E_AUDIT_CHAIN_BROKEN.
func (a *FileAppender) Verify() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var (
		prev  model.HashValue
		count int
		line  int
	)
	scanner := newScanner(file)
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return count, errclass.ErrAuditChainBroken.WithMessagef("line %d: malformed record: %v", line, err)
		}
		if record.PrevHash != prev {
			return count, errclass.ErrAuditChainBroken.WithMessagef("line %d: prev_hash does not match preceding record", line)
		}
		want, err := computeRecordHash(&record)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		if want != record.RecordHash {
			return count, errclass.ErrAuditChainBroken.WithMessagef("line %d: record_hash mismatch", line)
		}
		prev = record.RecordHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scan audit log: %w", err)
	}
	return count, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLine)
	return s
}

func computeRecordHash(record *model.AuditRecord) (model.HashValue, error) {
	hashRecord := *record
	hashRecord.RecordHash = ""

	sum, err := jsonutil.CanonicalHash(&hashRecord)
	if err != nil {
		return "", fmt.Errorf("canonical hash: %w", err)
	}
	return model.HashValue(sum), nil
}
