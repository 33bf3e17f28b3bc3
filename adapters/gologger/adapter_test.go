package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolvePrecedence(t *testing.T) {
	direct := &recordingLogger{id: "direct"}
	provided := &recordingLogger{id: "provided"}
	provider := &recordingProvider{logger: provided}

	_, resolved := Resolve("inbox", provider, direct)
	if got := resolved.(*recordingLogger); got.id != "provided" {
		t.Fatalf("provider logger must win over the direct logger, got %q", got.id)
	}

	resolvedProvider, resolved := Resolve("inbox", nil, direct)
	if got := resolved.(*recordingLogger); got.id != "direct" {
		t.Fatalf("expected direct logger when no provider is set, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected a provider wrapper derived from the logger")
	}

	if _, resolved = Resolve("inbox", nil, nil); resolved == nil {
		t.Fatalf("expected nop fallback when nothing is configured")
	}
}

func TestResolveForJobBridgesToGlog(t *testing.T) {
	provided := &recordingLogger{id: "provided"}
	provider := &recordingProvider{logger: provided}

	_, _, jobProvider, jobLogger := ResolveForJob("inbox", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected both go-job bridges, got provider=%v logger=%v", jobProvider, jobLogger)
	}

	jobProvider.GetLogger("inbox").Info("delayed action scheduled", "message_id", "msg-1")

	captured := provided.lastInfo
	if captured.msg != "delayed action scheduled" {
		t.Fatalf("bridged message did not reach the glog logger: %q", captured.msg)
	}
	if len(captured.args) != 2 || captured.args[0] != "message_id" || captured.args[1] != "msg-1" {
		t.Fatalf("bridged fields did not survive the crossing: %#v", captured.args)
	}
}

func TestToJobBridgesPreserveNil(t *testing.T) {
	if ToJobProvider(nil) != nil {
		t.Fatalf("nil provider must stay nil through the bridge")
	}
	if ToJobLogger(nil) != nil {
		t.Fatalf("nil logger must stay nil through the bridge")
	}
}

var (
	_ glog.Logger         = (*recordingLogger)(nil)
	_ glog.LoggerProvider = (*recordingProvider)(nil)
)

type recordingProvider struct {
	logger *recordingLogger
}

func (p *recordingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type recordingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *recordingLogger) Trace(string, ...any) {}
func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Fatal(string, ...any) {}

func (l *recordingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *recordingLogger) WithContext(context.Context) glog.Logger {
	return l
}
