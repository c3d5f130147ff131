package domain

// Stage is a step of the per-job workflow state machine:
// Idle -> ScopeEnsured -> PageReady -> InputsFilled -> Submitted -> {Confirmed | Failed}.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageScopeEnsured Stage = "scope_ensured"
	StagePageReady    Stage = "page_ready"
	StageInputsFilled Stage = "inputs_filled"
	StageSubmitted    Stage = "submitted"
	StageConfirmed    Stage = "confirmed"
	StageFailed       Stage = "failed"
)

// AuthState is the authentication state of a session.
type AuthState string

const (
	Unauthenticated AuthState = "unauthenticated"
	Authenticated   AuthState = "authenticated"
	Expired         AuthState = "expired"
)

// NavStatus tags the outcome of a navigation.
type NavStatus int

const (
	NavLoaded NavStatus = iota
	// NavAborted is the browser's net::ERR_ABORTED signal. For a URL that
	// serves a file attachment it means the download started.
	NavAborted
	NavFailed
)

func (s NavStatus) String() string {
	switch s {
	case NavLoaded:
		return "loaded"
	case NavAborted:
		return "aborted"
	default:
		return "failed"
	}
}

// Navigation is the typed result of a page transition.
type Navigation struct {
	URL    string
	Status NavStatus
	Reason string // browser error text, e.g. "net::ERR_ABORTED"
	Err    error
}

// Loaded builds a successful navigation result.
func Loaded(url string) Navigation {
	return Navigation{URL: url, Status: NavLoaded}
}

// AsError returns nil for a loaded page and a NavigationError otherwise.
// Callers that accept an aborted navigation check Status first.
func (n Navigation) AsError() error {
	if n.Status == NavLoaded {
		return nil
	}
	err := n.Err
	if err == nil {
		err = &navReason{n.Reason}
	}
	return NavigationFailed(n.URL, err)
}

type navReason struct{ reason string }

func (r *navReason) Error() string { return "navigation failed: " + r.reason }
