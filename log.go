package httpconn

import "go.uber.org/zap"

// Log subjects let operators filter logs by subsystem. They generalize a
// single named root logger (rootLogger.Named("http")) into one named child
// logger per subject instead of one logger for the whole package.
const (
	logSubjectGeneral           = "general"
	logSubjectConnection        = "connection"
	logSubjectServer            = "server"
	logSubjectStream            = "stream"
	logSubjectConnectionManager = "connection-manager"
	logSubjectWebSocket         = "websocket"
	logSubjectWebSocketSetup    = "websocket-setup"
)

// subjectLoggers bundles the named child loggers derived from a single root
// *zap.Logger. Constructed once per Server/ClientBootstrapRecord so that the
// zap.Logger.Named calls (which allocate) happen once rather than per event.
type subjectLoggers struct {
	general    *zap.Logger
	connection *zap.Logger
	server     *zap.Logger
	stream     *zap.Logger
}

// zapFieldALPN renders a negotiated-ALPN byte sequence as a zap field,
// guarding against empty input (logged as "<none>") so log lines stay
// greppable when the handshake reported nothing at all.
func zapFieldALPN(proto []byte) zap.Field {
	if len(proto) == 0 {
		return zap.String("alpn", "<none>")
	}
	return zap.ByteString("alpn", proto)
}

// newSubjectLoggersPtr is the pointer-returning convenience client.go and
// server.go use, since they thread *subjectLoggers through install.go/
// alpn.go rather than copying the struct.
func newSubjectLoggersPtr(root *zap.Logger) *subjectLoggers {
	l := newSubjectLoggers(root)
	return &l
}

func newSubjectLoggers(root *zap.Logger) subjectLoggers {
	if root == nil {
		root = zap.NewNop()
	}
	return subjectLoggers{
		general:    root.Named(logSubjectGeneral),
		connection: root.Named(logSubjectConnection),
		server:     root.Named(logSubjectServer),
		stream:     root.Named(logSubjectStream),
	}
}
