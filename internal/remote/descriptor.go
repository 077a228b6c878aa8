// Package remote implements a gRPC-backed second interpreter/Mapping
// (spec.md SPEC_FULL.md §4.G). It is the out-of-process counterpart to
// memmap: instead of walking a local Go value tree, it serializes the
// query continuation it was handed and asks a remote service to resolve it,
// the way grpctp.Transport calls out to the teacher's own resolver/loader
// services.
//
// Unlike grpcrt's Registry-driven per-field descriptors (generated ahead of
// time from an IR by protoreg), this bridge has exactly one RPC shape for
// every field it might be asked to resolve, so its descriptor is a small,
// hand-built FileDescriptorProto rather than a generated registry: a single
// Evaluate(google.protobuf.Struct) returns (google.protobuf.Struct) method.
// google.protobuf.Struct is reused as-is from the global registry (it is
// already registered by importing structpb) instead of defining a bespoke
// message shape, since the payload is fully dynamic (a serialized query
// selection tree plus a JSON-shaped result) and Struct already models
// exactly that.
package remote

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	serviceName = "CompositeGraphRemote"
	methodName  = "Evaluate"
)

// buildEvaluateMethod constructs the one-method service descriptor used for
// every remote dispatch and returns its MethodDescriptor, ready to hand to
// Caller.Call(ctx, method, request).
func buildEvaluateMethod() (protoreflect.MethodDescriptor, error) {
	fdProto := &descriptorpb.FileDescriptorProto{
		Name:       proto.String("compositegraph/remote/remote.proto"),
		Package:    proto.String("compositegraph.remote"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/struct.proto"},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String(serviceName),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       proto.String(methodName),
						InputType:  proto.String(".google.protobuf.Struct"),
						OutputType: proto.String(".google.protobuf.Struct"),
					},
				},
			},
		},
	}

	fd, err := protodesc.NewFile(fdProto, protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("remote: building service descriptor: %w", err)
	}
	svc := fd.Services().ByName(serviceName)
	if svc == nil {
		return nil, fmt.Errorf("remote: service %s not found after build", serviceName)
	}
	method := svc.Methods().ByName(methodName)
	if method == nil {
		return nil, fmt.Errorf("remote: method %s not found after build", methodName)
	}
	return method, nil
}
