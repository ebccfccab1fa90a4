package session

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/agentwire/agentwire/pkg/errors"
	"github.com/agentwire/agentwire/pkg/logging"
	"github.com/agentwire/agentwire/pkg/protocol"
)

// Negotiator performs the initialize exchange: version selection, capability
// advertisement, and the session's move into the initializing state.
type Negotiator struct {
	serverInfo   protocol.ServerInfo
	capabilities protocol.ServerCapabilities
	instructions string
	supported    []string
	logger       logging.Logger
}

// NegotiatorOption configures a Negotiator.
type NegotiatorOption func(*Negotiator)

// WithInstructions sets the free-text usage hint returned from initialize.
func WithInstructions(text string) NegotiatorOption {
	return func(n *Negotiator) { n.instructions = text }
}

// WithSupportedVersions overrides the protocol revisions the negotiator
// accepts, newest first.
func WithSupportedVersions(versions []string) NegotiatorOption {
	return func(n *Negotiator) {
		if len(versions) > 0 {
			n.supported = versions
		}
	}
}

// WithNegotiatorLogger sets the negotiator's logger.
func WithNegotiatorLogger(logger logging.Logger) NegotiatorOption {
	return func(n *Negotiator) {
		if logger != nil {
			n.logger = logger.WithFields(logging.String("component", "negotiate"))
		}
	}
}

// NewNegotiator creates a Negotiator advertising the given identity and
// capability set.
func NewNegotiator(info protocol.ServerInfo, caps protocol.ServerCapabilities, opts ...NegotiatorOption) *Negotiator {
	n := &Negotiator{
		serverInfo:   info,
		capabilities: caps,
		supported:    protocol.SupportedProtocolVersions,
		logger:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Initialize handles one initialize request against a session. The session
// moves to initializing on success; a repeated initialize is rejected without
// disturbing the first negotiation.
func (n *Negotiator) Initialize(sess *Session, rawParams json.RawMessage) (*protocol.InitializeResult, error) {
	var params protocol.InitializeParams
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, errors.InvalidParams(protocol.MethodInitialize, err.Error())
		}
	}
	if params.ProtocolVersion == "" {
		return nil, errors.MissingParam(protocol.MethodInitialize, "protocolVersion")
	}

	version := n.selectVersion(params.ProtocolVersion)
	if err := sess.beginInitialize(version, params.ClientInfo, params.Capabilities); err != nil {
		return nil, errors.InvalidRequest("session already initialized").WithDetail(err.Error())
	}

	clientName := ""
	if params.ClientInfo != nil {
		clientName = params.ClientInfo.Name
	}
	n.logger.Info("session negotiated",
		logging.String("session_id", sess.ID()),
		logging.String("client", clientName),
		logging.String("requested_version", params.ProtocolVersion),
		logging.String("negotiated_version", version))
	if params.Capabilities != nil && len(params.Capabilities.Extra) > 0 {
		n.logger.Debug("client declared capabilities this server does not model",
			logging.String("session_id", sess.ID()),
			logging.String("capabilities", strings.Join(extraCapabilityNames(params.Capabilities), ",")))
	}

	return &protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    n.capabilities,
		ServerInfo:      n.serverInfo,
		Instructions:    n.instructions,
	}, nil
}

func extraCapabilityNames(caps *protocol.ClientCapabilities) []string {
	names := make([]string, 0, len(caps.Extra))
	for name := range caps.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// selectVersion echoes an exactly supported revision and otherwise answers
// with the newest one the server speaks. The client decides whether it can
// proceed with the counter-offer.
func (n *Negotiator) selectVersion(requested string) string {
	for _, v := range n.supported {
		if v == requested {
			return v
		}
	}
	return n.supported[0]
}

// Capabilities returns the advertised server capability set.
func (n *Negotiator) Capabilities() protocol.ServerCapabilities {
	return n.capabilities
}

// ServerInfo returns the advertised server identity.
func (n *Negotiator) ServerInfo() protocol.ServerInfo {
	return n.serverInfo
}
