package grpcsink

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified name of the RecordStream service
// declared in api/modes/v1/record.proto.
const ServiceName = "modes.v1.RecordStream"

const subscribeMethod = "/" + ServiceName + "/Subscribe"

// RecordStreamServer is the server API of RecordStream.
type RecordStreamServer interface {
	Subscribe(*emptypb.Empty, grpc.ServerStream) error
}

// serviceDesc registers RecordStream without generated stubs: requests are
// google.protobuf.Empty and every streamed message is a BytesValue holding
// one encoded record.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordStreamServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Subscribe",
		Handler:       subscribeHandler,
		ServerStreams: true,
	}},
	Metadata: "api/modes/v1/record.proto",
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RecordStreamServer).Subscribe(in, stream)
}

// RegisterRecordStreamServer registers srv on s.
func RegisterRecordStreamServer(s grpc.ServiceRegistrar, srv RecordStreamServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Subscribe streams records from a RecordStream server, calling fn for each
// until the stream ends, ctx is done or fn returns an error. A server that
// closes the stream cleanly yields nil.
func Subscribe(ctx context.Context, cc grpc.ClientConnInterface, fn func(record []byte) error) error {
	stream, err := cc.NewStream(ctx, &serviceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(msg.GetValue()); err != nil {
			return err
		}
	}
}
