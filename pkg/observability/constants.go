package observability

const (
	AttrServiceName     = "service.name"
	AttrServiceVersion  = "service.version"
	AttrAgentName       = "agent.name"
	AttrAgentLLM        = "agent.llm"
	AttrToolName        = "tool.name"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrErrorType       = "error.type"
	AttrStatusCode      = "http.status_code"

	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"
	AttrEventID          = "swarmd.event_id"

	SpanAgentCall     = "agent.call"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanMemoryLookup  = "agent.memory_lookup"

	SpanAgentRun     = "swarmd.agent_run"
	SpanLLMCall      = "swarmd.llm_call"
	SpanMemorySearch = "swarmd.memory_search"
	SpanHTTPRequest  = "swarmd.http_request"

	DefaultServiceName  = "swarmd"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
