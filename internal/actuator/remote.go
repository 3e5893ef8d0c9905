package actuator

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/tm2pc/txmanager/internal/tm2pc"
)

// rawJSONCodec lets RemoteCall invoke a gRPC method generically, without
// the .proto-generated message types protoc would normally produce: the
// wire payload is just task.Data passed through as JSON bytes.
type rawJSONCodec struct{}

func (rawJSONCodec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case json.RawMessage:
		return m, nil
	case *json.RawMessage:
		return *m, nil
	default:
		return json.Marshal(v)
	}
}

func (rawJSONCodec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case *json.RawMessage:
		*m = append((*m)[:0], data...)
		return nil
	default:
		return json.Unmarshal(data, v)
	}
}

func (rawJSONCodec) Name() string { return rawJSONCodecName }

const rawJSONCodecName = "tm2pc-rawjson"

func init() {
	encoding.RegisterCodec(rawJSONCodec{})
}

// RemoteCall dispatches a task's prepare/commit/compensate call over a
// shared gRPC connection, addressing the method by the task's CallType
// (e.g. "Prepare", "Commit", "Compensate") against a fixed service path.
type RemoteCall struct {
	conn        *grpc.ClientConn
	serviceName string
}

// NewRemoteCall wraps an already-dialed connection to one participant
// service. Callers typically keep one *grpc.ClientConn per callee and
// register a RemoteCall for it in a CalleeRegistry.
func NewRemoteCall(conn *grpc.ClientConn, serviceName string) *RemoteCall {
	return &RemoteCall{conn: conn, serviceName: serviceName}
}

func (r *RemoteCall) Call(ctx context.Context, task tm2pc.Task) (string, error) {
	method := fmt.Sprintf("/%s/%s", r.serviceName, task.CallType)

	reply := json.RawMessage{}
	req := task.Data
	err := r.conn.Invoke(ctx, method, &req, &reply, grpc.CallContentSubtype(rawJSONCodecName))
	if err != nil {
		return "", fmt.Errorf("actuator: remote call %s failed: %w", method, err)
	}
	return string(reply), nil
}
