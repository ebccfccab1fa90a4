package protocol

// Protocol revisions supported by this engine, newest first. The negotiator
// echoes an exactly-matching client revision and otherwise answers with
// LatestProtocolVersion.
const (
	LatestProtocolVersion   = "2025-03-26"
	PreviousProtocolVersion = "2024-11-05"
)

// SupportedProtocolVersions lists the revisions this engine speaks, newest
// first.
var SupportedProtocolVersions = []string{
	LatestProtocolVersion,
	PreviousProtocolVersion,
}

// Control-plane methods.
const (
	// Lifecycle
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"

	// Resources
	MethodListResources = "resources/list"
	MethodReadResource  = "resources/read"

	// Tools
	MethodListTools = "tools/list"
	MethodCallTool  = "tools/call"

	// Logging
	MethodSetLogLevel = "logging/setLevel"

	// Server-initiated notifications
	MethodLogMessage       = "notifications/message"
	MethodProgress         = "notifications/progress"
	MethodCancelled        = "notifications/cancelled"
	MethodResourcesChanged = "notifications/resources/list_changed"
	MethodToolsChanged     = "notifications/tools/list_changed"
)

// CapabilityType names a negotiated feature flag.
type CapabilityType string

const (
	// CapabilityTools indicates the server exposes callable tools.
	CapabilityTools CapabilityType = "tools"

	// CapabilityResources indicates the server exposes readable resources.
	CapabilityResources CapabilityType = "resources"

	// CapabilityLogging indicates the server emits log notifications and
	// honors logging/setLevel.
	CapabilityLogging CapabilityType = "logging"

	// CapabilityRoots is a client-declared capability (roots.listChanged).
	CapabilityRoots CapabilityType = "roots"

	// CapabilitySampling is a client-declared capability.
	CapabilitySampling CapabilityType = "sampling"
)
