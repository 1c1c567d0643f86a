package audit_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/autobackup-watch/autobackup/internal/audit"
	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func versionEvent(file string, v int) model.AuditRecord {
	return model.AuditRecord{
		EventType: model.EventTypeVersion,
		File:      file,
		Version:   v,
		Artifact:  "a_v2_backup_20240101_120000.txt",
		Details:   map[string]any{"size": 5},
	}
}

func TestFileAppender_AppendCreatesJSONL(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), ".autobackup", "journal.jsonl")

	appender := audit.NewFileAppender(logPath)
	require.NoError(t, appender.Append(model.AuditRecord{EventType: model.EventTypeTrack, File: "a.txt", Version: 1}))

	file, err := os.Open(logPath)
	require.NoError(t, err)
	defer file.Close()

	scanner := bufio.NewScanner(file)
	require.True(t, scanner.Scan())

	var record model.AuditRecord
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
	assert.Equal(t, model.EventTypeTrack, record.EventType)
	assert.Equal(t, "a.txt", record.File)
	assert.False(t, record.Timestamp.IsZero())
}

func TestFileAppender_HashChain(t *testing.T) {
	appender := audit.NewFileAppender(filepath.Join(t.TempDir(), "journal.jsonl"))

	require.NoError(t, appender.Append(model.AuditRecord{EventType: model.EventTypeTrack, File: "a.txt", Version: 1}))
	require.NoError(t, appender.Append(versionEvent("a.txt", 2)))

	records, err := appender.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, model.HashValue(""), records[0].PrevHash)
	assert.Equal(t, records[0].RecordHash, records[1].PrevHash)
	assert.NotEmpty(t, records[1].RecordHash)

	n, err := appender.Verify()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFileAppender_VerifyDetectsTampering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "journal.jsonl")
	appender := audit.NewFileAppender(logPath)
	require.NoError(t, appender.Append(versionEvent("a.txt", 2)))
	require.NoError(t, appender.Append(versionEvent("a.txt", 3)))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"version":2`, `"version":7`, 1)
	require.NoError(t, os.WriteFile(logPath, []byte(tampered), 0644))

	_, err = appender.Verify()
	assert.ErrorIs(t, err, errclass.ErrAuditChainBroken)
}

func TestFileAppender_ConcurrentAppends(t *testing.T) {
	appender := audit.NewFileAppender(filepath.Join(t.TempDir(), "journal.jsonl"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			appender.Append(versionEvent("a.txt", idx+2))
		}(i)
	}
	wg.Wait()

	records, err := appender.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 10)

	_, err = appender.Verify()
	assert.NoError(t, err)
}

func TestFileAppender_MissingJournal(t *testing.T) {
	appender := audit.NewFileAppender(filepath.Join(t.TempDir(), "journal.jsonl"))
	records, err := appender.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, records)

	n, err := appender.Verify()
	require.NoError(t, err)
	assert.Zero(t, n)
}
