// Package bot – access.go implements the access control system for FightBot.
//
// There is exactly one owner plus a mutable set of subadmins. The owner is
// fixed in the policy file and can never be removed through commands; both
// owner and subadmins may drive the bot's privileged commands, but only the
// owner may change the subadmin set.
//
// Identities are compared in bare form: the device suffix (":12") and the
// network server ("@s.whatsapp.net") are stripped, so the same account
// matches regardless of which linked device sent the message.
package bot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// userServer is the network suffix re-attached when addressing bare handles.
const userServer = "s.whatsapp.net"

// AccessPolicy is the persisted access record: one owner and an ordered
// list of subadmins. It is loaded once at startup and rewritten wholesale
// on every mutation.
type AccessPolicy struct {
	Owner     string   `json:"owner"`
	Subadmins []string `json:"subadmins"`
}

// PolicyStore persists the access policy to a JSON file.
type PolicyStore struct {
	path string
}

// NewPolicyStore creates a store backed by the given file path.
func NewPolicyStore(path string) *PolicyStore {
	return &PolicyStore{path: path}
}

// Load reads the policy file. A missing file is not an error; the provided
// fallback owner seeds a fresh policy instead.
func (s *PolicyStore) Load(fallbackOwner string) (AccessPolicy, error) {
	if s.path == "" {
		return AccessPolicy{Owner: fallbackOwner}, nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return AccessPolicy{Owner: fallbackOwner}, nil
	}
	if err != nil {
		return AccessPolicy{}, fmt.Errorf("reading policy file: %w", err)
	}

	var p AccessPolicy
	if err := json.Unmarshal(data, &p); err != nil {
		return AccessPolicy{}, fmt.Errorf("parsing policy file: %w", err)
	}
	if p.Owner == "" {
		p.Owner = fallbackOwner
	}
	return p, nil
}

// Save rewrites the policy file wholesale with restricted permissions.
// A store with no path keeps the policy in memory only.
func (s *PolicyStore) Save(p AccessPolicy) error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling policy: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing policy file: %w", err)
	}
	return nil
}

// AccessManager answers authorization queries and mutates the subadmin set.
// Every mutation is persisted synchronously before the call returns.
type AccessManager struct {
	store  *PolicyStore
	logger *slog.Logger

	mu     sync.RWMutex
	policy AccessPolicy
}

// NewAccessManager loads the policy from the store and returns a manager.
func NewAccessManager(store *PolicyStore, fallbackOwner string, logger *slog.Logger) (*AccessManager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := store.Load(fallbackOwner)
	if err != nil {
		return nil, err
	}

	// Normalize addresses from the file: bare handles become full JIDs,
	// duplicates collapse.
	policy.Owner = EnsureJID(policy.Owner)
	policy.Subadmins = lo.Uniq(lo.Map(policy.Subadmins, func(j string, _ int) string {
		return EnsureJID(j)
	}))

	am := &AccessManager{
		store:  store,
		logger: logger.With("component", "access"),
		policy: policy,
	}

	am.logger.Info("access policy loaded",
		"owner", policy.Owner,
		"subadmins", len(policy.Subadmins))

	return am, nil
}

// IsAuthorized returns true if the sender's bare identity equals the
// owner's or belongs to the subadmin set.
func (am *AccessManager) IsAuthorized(sender string) bool {
	am.mu.RLock()
	defer am.mu.RUnlock()

	s := BareIdentity(sender)
	if s == BareIdentity(am.policy.Owner) {
		return true
	}
	return lo.ContainsBy(am.policy.Subadmins, func(j string) bool {
		return BareIdentity(j) == s
	})
}

// IsOwner returns true if the sender's bare identity equals the owner's.
func (am *AccessManager) IsOwner(sender string) bool {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return BareIdentity(sender) == BareIdentity(am.policy.Owner)
}

// Owner returns the owner's full address.
func (am *AccessManager) Owner() string {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return am.policy.Owner
}

// Subadmins returns a copy of the subadmin addresses.
func (am *AccessManager) Subadmins() []string {
	am.mu.RLock()
	defer am.mu.RUnlock()
	out := make([]string, len(am.policy.Subadmins))
	copy(out, am.policy.Subadmins)
	return out
}

// AddSubadmin inserts an identity into the subadmin set and persists the
// policy. Returns false (and does not persist) if the identity is already
// a member. Accepts a full address or a bare numeric handle.
func (am *AccessManager) AddSubadmin(identity string) (bool, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	target := EnsureJID(identity)
	bare := BareIdentity(target)

	exists := lo.ContainsBy(am.policy.Subadmins, func(j string) bool {
		return BareIdentity(j) == bare
	})
	if exists {
		return false, nil
	}

	am.policy.Subadmins = append(am.policy.Subadmins, target)
	if err := am.store.Save(am.policy); err != nil {
		// Roll back the in-memory insert so memory and disk stay in sync.
		am.policy.Subadmins = am.policy.Subadmins[:len(am.policy.Subadmins)-1]
		return false, err
	}

	am.logger.Info("subadmin added", "jid", target)
	return true, nil
}

// RemoveSubadmin removes an identity from the subadmin set and persists
// unconditionally. Removing an absent identity is not an error. The owner
// cannot be removed through this operation.
func (am *AccessManager) RemoveSubadmin(identity string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	bare := BareIdentity(EnsureJID(identity))

	am.policy.Subadmins = lo.Filter(am.policy.Subadmins, func(j string, _ int) bool {
		return BareIdentity(j) != bare
	})

	if err := am.store.Save(am.policy); err != nil {
		return err
	}

	am.logger.Info("subadmin removed", "jid", identity)
	return nil
}

// ---------- Identity helpers ----------

var deviceSuffixRe = regexp.MustCompile(`:\d+$`)

// BareIdentity reduces an address to its comparable form: the device
// suffix and the server part are stripped.
func BareIdentity(jid string) string {
	if jid == "" {
		return ""
	}
	if at := strings.Index(jid, "@"); at >= 0 {
		return deviceSuffixRe.ReplaceAllString(jid[:at], "")
	}
	return deviceSuffixRe.ReplaceAllString(jid, "")
}

// EnsureJID turns a bare numeric handle into a full address; full
// addresses pass through unchanged.
func EnsureJID(jid string) string {
	jid = strings.TrimSpace(jid)
	if jid == "" || strings.Contains(jid, "@") {
		return jid
	}
	return jid + "@" + userServer
}

// DigitsOnly strips everything but digits from a string. Used to accept
// phone numbers written with punctuation ("+55 11 9999-9999").
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
