package dispatch

import "fmt"

// Kind classifies the family of error returned from Dispatcher Init/Start,
// matching the taxonomy in the original design: config errors are fatal at
// init, DNS/inbound/outbound/route errors wrap a collaborator failure.
type Kind int

const (
	// KindUnknownTag: a route rule names an inbound or outbound tag that
	// was never declared.
	KindUnknownTag Kind = iota
	// KindDuplicateTag: the same tag was declared twice in one namespace
	// (inbound tags, outbound tags, or route-rule inbound tags).
	KindDuplicateTag
	// KindSerialize / KindDeserialize: config (de)serialization failed.
	KindSerialize
	KindDeserialize
	// KindDNSResolve / KindDNSInit: the DNS facade failed to resolve or
	// to initialize.
	KindDNSResolve
	KindDNSInit
	// KindServer: an inbound transport server failed (listen or accept).
	KindServer
	// KindClient: an outbound transport client failed (dial).
	KindClient
	// KindService: a protocol handshake (inbound or outbound) failed.
	KindService
	// KindOption: a collaborator rejected its own configuration options.
	KindOption
)

func (k Kind) String() string {
	switch k {
	case KindUnknownTag:
		return "unknown tag"
	case KindDuplicateTag:
		return "duplicate tag"
	case KindSerialize:
		return "serialize"
	case KindDeserialize:
		return "deserialize"
	case KindDNSResolve:
		return "dns resolve"
	case KindDNSInit:
		return "dns init"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindService:
		return "service"
	case KindOption:
		return "option"
	default:
		return "unknown"
	}
}

// Error is the dispatcher's own error type. It carries a Kind for callers
// that want to branch on errors.As, a Tag for the UnknownTag/DuplicateTag
// cases, and wraps an inner cause when one exists.
type Error struct {
	Kind  Kind
	Tag   string
	inner error
}

func (e *Error) Error() string {
	if e.Tag != "" {
		if e.inner != nil {
			return fmt.Sprintf("[dispatch] %s(%s): %s", e.Kind, e.Tag, e.inner)
		}
		return fmt.Sprintf("[dispatch] %s(%s)", e.Kind, e.Tag)
	}
	if e.inner != nil {
		return fmt.Sprintf("[dispatch] %s: %s", e.Kind, e.inner)
	}
	return fmt.Sprintf("[dispatch] %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.inner
}

func errUnknownTag(tag string) *Error {
	return &Error{Kind: KindUnknownTag, Tag: tag}
}

func errDuplicateTag(tag string) *Error {
	return &Error{Kind: KindDuplicateTag, Tag: tag}
}

func wrapErr(kind Kind, tag string, err error) *Error {
	return &Error{Kind: kind, Tag: tag, inner: err}
}

// WrapError builds a dispatch.Error of the given Kind around err, tagged
// with tag. Exported for collaborators outside this package (e.g. config,
// which rejects its own malformed options with KindOption) that want their
// failures classified under the same taxonomy this package uses for its
// own per-connection errors.
func WrapError(kind Kind, tag string, err error) *Error {
	return wrapErr(kind, tag, err)
}
