package benefit

import (
	context "context"

	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
)

const (
	BenefitService_Transfer_FullMethodName      = "/benefit.BenefitService/Transfer"
	BenefitService_GetAccount_FullMethodName    = "/benefit.BenefitService/GetAccount"
	BenefitService_ListAccounts_FullMethodName  = "/benefit.BenefitService/ListAccounts"
	BenefitService_CreateAccount_FullMethodName = "/benefit.BenefitService/CreateAccount"
	BenefitService_UpdateAccount_FullMethodName = "/benefit.BenefitService/UpdateAccount"
	BenefitService_DeleteAccount_FullMethodName = "/benefit.BenefitService/DeleteAccount"
)

type BenefitServiceClient interface {
	Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*TransferResponse, error)
	GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*GetAccountResponse, error)
	ListAccounts(ctx context.Context, in *ListAccountsRequest, opts ...grpc.CallOption) (*ListAccountsResponse, error)
	CreateAccount(ctx context.Context, in *CreateAccountRequest, opts ...grpc.CallOption) (*CreateAccountResponse, error)
	UpdateAccount(ctx context.Context, in *UpdateAccountRequest, opts ...grpc.CallOption) (*UpdateAccountResponse, error)
	DeleteAccount(ctx context.Context, in *DeleteAccountRequest, opts ...grpc.CallOption) (*DeleteAccountResponse, error)
}

type benefitServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBenefitServiceClient(cc grpc.ClientConnInterface) BenefitServiceClient {
	return &benefitServiceClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *benefitServiceClient) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	return invoke[TransferRequest, TransferResponse](ctx, c.cc, BenefitService_Transfer_FullMethodName, in, opts)
}

func (c *benefitServiceClient) GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*GetAccountResponse, error) {
	return invoke[GetAccountRequest, GetAccountResponse](ctx, c.cc, BenefitService_GetAccount_FullMethodName, in, opts)
}

func (c *benefitServiceClient) ListAccounts(ctx context.Context, in *ListAccountsRequest, opts ...grpc.CallOption) (*ListAccountsResponse, error) {
	return invoke[ListAccountsRequest, ListAccountsResponse](ctx, c.cc, BenefitService_ListAccounts_FullMethodName, in, opts)
}

func (c *benefitServiceClient) CreateAccount(ctx context.Context, in *CreateAccountRequest, opts ...grpc.CallOption) (*CreateAccountResponse, error) {
	return invoke[CreateAccountRequest, CreateAccountResponse](ctx, c.cc, BenefitService_CreateAccount_FullMethodName, in, opts)
}

func (c *benefitServiceClient) UpdateAccount(ctx context.Context, in *UpdateAccountRequest, opts ...grpc.CallOption) (*UpdateAccountResponse, error) {
	return invoke[UpdateAccountRequest, UpdateAccountResponse](ctx, c.cc, BenefitService_UpdateAccount_FullMethodName, in, opts)
}

func (c *benefitServiceClient) DeleteAccount(ctx context.Context, in *DeleteAccountRequest, opts ...grpc.CallOption) (*DeleteAccountResponse, error) {
	return invoke[DeleteAccountRequest, DeleteAccountResponse](ctx, c.cc, BenefitService_DeleteAccount_FullMethodName, in, opts)
}

type BenefitServiceServer interface {
	Transfer(context.Context, *TransferRequest) (*TransferResponse, error)
	GetAccount(context.Context, *GetAccountRequest) (*GetAccountResponse, error)
	ListAccounts(context.Context, *ListAccountsRequest) (*ListAccountsResponse, error)
	CreateAccount(context.Context, *CreateAccountRequest) (*CreateAccountResponse, error)
	UpdateAccount(context.Context, *UpdateAccountRequest) (*UpdateAccountResponse, error)
	DeleteAccount(context.Context, *DeleteAccountRequest) (*DeleteAccountResponse, error)
	mustEmbedUnimplementedBenefitServiceServer()
}

// UnimplementedBenefitServiceServer must be embedded by implementations.
type UnimplementedBenefitServiceServer struct{}

func (UnimplementedBenefitServiceServer) Transfer(context.Context, *TransferRequest) (*TransferResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Transfer not implemented")
}
func (UnimplementedBenefitServiceServer) GetAccount(context.Context, *GetAccountRequest) (*GetAccountResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetAccount not implemented")
}
func (UnimplementedBenefitServiceServer) ListAccounts(context.Context, *ListAccountsRequest) (*ListAccountsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListAccounts not implemented")
}
func (UnimplementedBenefitServiceServer) CreateAccount(context.Context, *CreateAccountRequest) (*CreateAccountResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CreateAccount not implemented")
}
func (UnimplementedBenefitServiceServer) UpdateAccount(context.Context, *UpdateAccountRequest) (*UpdateAccountResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method UpdateAccount not implemented")
}
func (UnimplementedBenefitServiceServer) DeleteAccount(context.Context, *DeleteAccountRequest) (*DeleteAccountResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DeleteAccount not implemented")
}
func (UnimplementedBenefitServiceServer) mustEmbedUnimplementedBenefitServiceServer() {}

func RegisterBenefitServiceServer(s grpc.ServiceRegistrar, srv BenefitServiceServer) {
	s.RegisterService(&BenefitService_ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](method string, call func(BenefitServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BenefitServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BenefitServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var BenefitService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "benefit.BenefitService",
	HandlerType: (*BenefitServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Transfer",
			Handler:    unaryHandler(BenefitService_Transfer_FullMethodName, BenefitServiceServer.Transfer),
		},
		{
			MethodName: "GetAccount",
			Handler:    unaryHandler(BenefitService_GetAccount_FullMethodName, BenefitServiceServer.GetAccount),
		},
		{
			MethodName: "ListAccounts",
			Handler:    unaryHandler(BenefitService_ListAccounts_FullMethodName, BenefitServiceServer.ListAccounts),
		},
		{
			MethodName: "CreateAccount",
			Handler:    unaryHandler(BenefitService_CreateAccount_FullMethodName, BenefitServiceServer.CreateAccount),
		},
		{
			MethodName: "UpdateAccount",
			Handler:    unaryHandler(BenefitService_UpdateAccount_FullMethodName, BenefitServiceServer.UpdateAccount),
		},
		{
			MethodName: "DeleteAccount",
			Handler:    unaryHandler(BenefitService_DeleteAccount_FullMethodName, BenefitServiceServer.DeleteAccount),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/gen/benefit",
}
