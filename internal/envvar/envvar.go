package envvar

const (
	// FlamingoEnv is the environment variable used to determine the environment
	FlamingoEnv = "FLAMINGO_ENV"

	// FlamingoServerHTTPPort is the environment variable used to determine the HTTP port
	FlamingoServerHTTPPort = "FLAMINGO_SERVER_HTTP_PORT"

	// FlamingoServerGRPCPort is the environment variable used to determine the gRPC port
	FlamingoServerGRPCPort = "FLAMINGO_SERVER_GRPC_PORT"

	// FlamingoModelsPath is the environment variable used to override the models directory
	FlamingoModelsPath = "FLAMINGO_MODELS_PATH"
)
