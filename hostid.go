package nodelog

import (
	"fmt"
	"os"
	"sync"
)

// hostIdentity returns a process-wide token identifying this host, computed
// once and cached. It exists for external formatters (the 'u' directive in
// the out-of-scope record-formatting template compiler, see SPEC_FULL.md
// §6) that want a race-free value to stamp into log lines; nodelog itself
// never formats a record and never reads this value.
//
// It is threaded through callers as a plain function rather than held in a
// mutable package-level variable, per the "implicit shared state via
// statics" design note: the laziness lives in sync.OnceValue, not in a
// var+mutex pair callers could observe mid-initialization.
var hostIdentity = sync.OnceValue(func() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return fmt.Sprintf("host-%d", os.Getpid())
	}
	return name
})

// HostIdentity returns the cached, process-wide host identity token.
func HostIdentity() string {
	return hostIdentity()
}
