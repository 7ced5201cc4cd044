package logsvc

import (
	"go.uber.org/zap"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/user"
)

// ZapLogger is a core.Logger writing to zap only; used by the admin CLI and tests.
type ZapLogger struct {
	sink *zap.SugaredLogger
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(sink *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{sink: sink}
}

func (l ZapLogger) kvs(args []interface{}) []interface{} {
	kvs := make([]interface{}, 0, len(args)*2)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			kvs = append(kvs, "user_id", a.ID)
		case error:
			kvs = append(kvs, "error", a.Error())
		case map[string]interface{}:
			for k, v := range a {
				kvs = append(kvs, k, v)
			}
		default:
			kvs = append(kvs, "extra", a)
		}
	}
	return kvs
}

func (l ZapLogger) Debug(msg string, args ...interface{}) { l.sink.Debugw(msg, l.kvs(args)...) }
func (l ZapLogger) Info(msg string, args ...interface{})  { l.sink.Infow(msg, l.kvs(args)...) }
func (l ZapLogger) Warn(msg string, args ...interface{})  { l.sink.Warnw(msg, l.kvs(args)...) }
func (l ZapLogger) Error(msg string, args ...interface{}) { l.sink.Errorw(msg, l.kvs(args)...) }
func (l ZapLogger) Fatal(msg string, args ...interface{}) { l.sink.Fatalw(msg, l.kvs(args)...) }
