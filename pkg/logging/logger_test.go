package logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestSetOutputs(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		currentOut := defaultLogger.Out
		if err := SetOutputs(nil, 0, 0); err != nil {
			t.Fatal(err)
		}
		if defaultLogger.Out != currentOut {
			t.Error("Logger output should not change by default")
		}
	})

	t.Run("stderr", func(t *testing.T) {
		if err := SetOutputs([]string{"="}, 0, 0); err != nil {
			t.Fatal(err)
		}
		if defaultLogger.Out != os.Stderr {
			t.Error("Logger output should be stderr")
		}
	})

	t.Run("directory", func(t *testing.T) {
		err := SetOutputs([]string{t.TempDir() + string(os.PathSeparator)}, 0, 0)
		if !errors.Is(err, ErrInvalidOutput) {
			t.Fatalf("SetOutputs with directory err=%v, expected %s", err, ErrInvalidOutput)
		}
	})

	t.Run("file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "out.log")
		if err := SetOutputs([]string{logFile}, 0, 0); err != nil {
			t.Fatal(err)
		}
		const content = "hello log"
		if _, err := defaultLogger.Out.Write([]byte(content)); err != nil {
			t.Fatal("write log output", err)
		}
		if err := CloseWriters(); err != nil {
			t.Fatal("close writers", err)
		}
		got, err := os.ReadFile(logFile)
		if err != nil {
			t.Fatal("read log file", err)
		}
		if string(got) != content {
			t.Fatalf("log content '%s', expected '%s'", got, content)
		}
	})
	t.Cleanup(func() { _ = SetOutputs([]string{"="}, 0, 0) })
}

func TestLogCallerTrimmer(t *testing.T) {
	tests := []struct {
		name             string
		file             string
		function         string
		expectedFile     string
		expectedFunction string
	}{
		{
			name:             "project directory",
			file:             "/home/user/work/commitgraph/pkg/graph/storage/storage.go",
			function:         "github.com/treeverse/commitgraph/pkg/graph/storage.SaveCommit",
			expectedFile:     "pkg/graph/storage/storage.go",
			expectedFunction: "pkg/graph/storage.SaveCommit",
		},
		{
			name:             "other project",
			file:             "/home/user/other/project/main.go",
			function:         "github.com/other/project.Main",
			expectedFile:     "home/user/other/project/main.go",
			expectedFunction: "github.com/other/project.Main",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := &runtime.Frame{File: tt.file, Line: 42, Function: tt.function}
			gotFunction, gotFile := logCallerTrimmer(frame)
			if expected := fmt.Sprintf("%s:42", tt.expectedFile); gotFile != expected {
				t.Errorf("file = %q, want %q", gotFile, expected)
			}
			if gotFunction != tt.expectedFunction {
				t.Errorf("function = %q, want %q", gotFunction, tt.expectedFunction)
			}
		})
	}
}

func TestContextLogging(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	if err := SetOutputs([]string{logFile}, 0, 0); err != nil {
		t.Fatalf("SetOutputs: %s", err)
	}
	SetOutputFormat("json")
	t.Cleanup(func() {
		SetOutputFormat("text")
		_ = SetOutputs([]string{"="}, 0, 0)
	})

	ctx := AddFields(context.Background(), Fields{RepositoryFieldKey: "owner/repo"})
	ctx = AddFields(ctx, Fields{OperationFieldKey: "fetch"})
	FromContext(ctx).WithField(ServerIDFieldKey, "node-1").Info("test message")
	if err := CloseWriters(); err != nil {
		t.Fatalf("CloseWriters: %s", err)
	}

	contents, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile %s: %s", logFile, err)
	}
	var entry map[string]any
	if err := json.Unmarshal(contents, &entry); err != nil {
		t.Fatalf("Unmarshal log entry: %s\nContents: %s", err, contents)
	}
	expected := Fields{
		RepositoryFieldKey: "owner/repo",
		OperationFieldKey:  "fetch",
		ServerIDFieldKey:   "node-1",
	}
	for k, v := range expected {
		if entry[k] != v {
			t.Errorf("field %q: got %v, want %v", k, entry[k], v)
		}
	}
}

func TestAddFieldsDoesNotModifyParent(t *testing.T) {
	parent := AddFields(context.Background(), Fields{"a": 1})
	_ = AddFields(parent, Fields{"b": 2})
	fields := parent.Value(LogFieldsContextKey).(Fields)
	if _, ok := fields["b"]; ok {
		t.Fatal("child fields leaked into parent context")
	}
}
