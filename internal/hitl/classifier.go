// Package hitl implements human-in-the-loop risk classification.
//
// The classifier is a pure function over task text and metadata: no I/O,
// no shared mutable state, safe for concurrent use. Rules only ever raise
// risk, never lower it once set.
//
// Import rules:
//   - CAN import: internal/constants, std lib
//   - MUST NOT import: internal/vault, internal/workflow
package hitl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aide-sh/aide/internal/constants"
)

// RiskLevel is the classifier's severity scale.
type RiskLevel string

// Risk levels, ordered low < medium < high.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// String implements fmt.Stringer.
func (r RiskLevel) String() string {
	return string(r)
}

var riskOrder = map[RiskLevel]int{ //nolint:gochecknoglobals // Read-only ordering table
	RiskLow:    0,
	RiskMedium: 1,
	RiskHigh:   2,
}

// atLeast returns the higher of the two risk levels. Rules use this so
// risk is monotonically non-decreasing across the rule sequence.
func atLeast(current, floor RiskLevel) RiskLevel {
	if riskOrder[floor] > riskOrder[current] {
		return floor
	}
	return current
}

// ActionType categorizes what a task asks the system to do. It steers
// keyword emphasis and executor routing; on its own it never forces
// approval, except for file deletion.
type ActionType string

// Action types.
const (
	ActionReplyEmail  ActionType = "reply_email"
	ActionSendEmail   ActionType = "send_email"
	ActionCreateFile  ActionType = "create_file"
	ActionDeleteFile  ActionType = "delete_file"
	ActionPayment     ActionType = "payment"
	ActionSocialPost  ActionType = "social_post"
	ActionSocialReply ActionType = "social_reply"
	ActionSchedule    ActionType = "schedule"
	ActionArchive     ActionType = "archive"
	ActionInformation ActionType = "information"
	ActionUnknown     ActionType = "unknown"
)

// String implements fmt.Stringer.
func (a ActionType) String() string {
	return string(a)
}

// Decision is the classifier output for a single task.
type Decision struct {
	// RequiresApproval is true iff any reason was recorded or the final
	// risk is not low.
	RequiresApproval bool

	// Reasons are the ordered, human-readable classification reasons.
	// Never empty: auto-approved tasks carry a default reason for
	// observability.
	Reasons []string

	// ActionType is the detected action category.
	ActionType ActionType

	// RiskLevel is the final severity.
	RiskLevel RiskLevel

	// SuggestedAction is a free-text next action for the plan artifact.
	SuggestedAction string
}

// sensitiveKeywords maps content categories to their trigger keywords.
// Hits in payment, financial, or legal force risk to high; the rest force
// at least medium.
var sensitiveKeywords = map[string][]string{ //nolint:gochecknoglobals // Read-only keyword table
	"payment":   {"payment", "pay", "transfer", "wire", "invoice", "bill", "charge"},
	"financial": {"bank", "credit card", "account", "money", "dollar", "$", "cost"},
	"personal":  {"password", "ssn", "social security", "confidential", "private"},
	"legal":     {"contract", "agreement", "legal", "lawsuit", "attorney"},
	"medical":   {"medical", "health", "doctor", "prescription", "diagnosis"},
}

// highRiskCategories are the keyword categories that force risk to high.
var highRiskCategories = map[string]bool{ //nolint:gochecknoglobals // Read-only lookup table
	"payment":   true,
	"financial": true,
	"legal":     true,
}

// categoryOrder fixes the iteration order over sensitiveKeywords so
// reasons come out deterministically.
var categoryOrder = []string{"payment", "financial", "personal", "legal", "medical"} //nolint:gochecknoglobals // Read-only ordering

// amountPattern matches dollar amounts like $123.45 or $1,250.
var amountPattern = regexp.MustCompile(`\$\s*(\d+(?:,\d{3})*(?:\.\d{2})?)`)

// Classifier determines whether tasks require human approval.
//
// Constitution rules:
//   - payments above the threshold require approval
//   - emails to unknown recipients require approval
//   - social media posts and replies require approval
//   - file deletions always require approval (irreversible)
type Classifier struct {
	knownContacts map[string]bool
	threshold     float64
}

// NewClassifier creates a classifier. knownContacts are email addresses
// whose replies may be auto-approved; comparison is case-insensitive.
// threshold is the dollar amount above which approval is forced; zero or
// negative falls back to the built-in default.
func NewClassifier(knownContacts []string, threshold float64) *Classifier {
	known := make(map[string]bool, len(knownContacts))
	for _, c := range knownContacts {
		known[strings.ToLower(c)] = true
	}
	if threshold <= 0 {
		threshold = constants.ApprovalAmountThreshold
	}
	return &Classifier{knownContacts: known, threshold: threshold}
}

// Classify runs the ordered rule sequence over the task content and
// metadata and returns the resulting decision. Pure and deterministic.
func (c *Classifier) Classify(content string, metadata map[string]any) Decision {
	lower := strings.ToLower(content)
	var reasons []string
	risk := RiskLow

	actionType := detectActionType(lower, metadata)

	// Rule 1: dollar amounts. Anything above the threshold is high risk;
	// smaller non-zero amounts are at least medium.
	if amounts := extractAmounts(content); len(amounts) > 0 {
		maxAmount := amounts[0]
		for _, a := range amounts[1:] {
			if a > maxAmount {
				maxAmount = a
			}
		}
		if maxAmount > c.threshold {
			reasons = append(reasons, fmt.Sprintf("Payment amount $%.2f exceeds $%.0f threshold",
				maxAmount, c.threshold))
			risk = RiskHigh
		} else if maxAmount > 0 {
			reasons = append(reasons, fmt.Sprintf("Contains payment amount $%.2f", maxAmount))
			risk = atLeast(risk, RiskMedium)
		}
	}

	// Rule 2: sensitive keyword categories.
	for _, category := range categoryOrder {
		if !containsAny(lower, sensitiveKeywords[category]) {
			continue
		}
		reasons = append(reasons, fmt.Sprintf("Contains %s-related content", category))
		if highRiskCategories[category] {
			risk = atLeast(risk, RiskHigh)
		} else {
			risk = atLeast(risk, RiskMedium)
		}
	}

	// Rule 3: outbound email to an unknown recipient.
	if actionType == ActionSendEmail || actionType == ActionReplyEmail {
		recipient := stringFromMeta(metadata, "to")
		if recipient == "" {
			recipient = stringFromMeta(metadata, "from")
		}
		if recipient != "" && !c.knownContacts[strings.ToLower(recipient)] {
			reasons = append(reasons, "Email to unknown recipient: "+recipient)
			risk = atLeast(risk, RiskMedium)
		}
	}

	// Rule 4: file deletion is irreversible. No exceptions.
	if actionType == ActionDeleteFile {
		reasons = append(reasons, "File deletion is irreversible")
		risk = RiskHigh
	}

	// Rule 5: public social media actions.
	if actionType == ActionSocialPost || actionType == ActionSocialReply {
		reasons = append(reasons, "Social media actions are public and visible")
		risk = atLeast(risk, RiskMedium)
	}

	requiresApproval := len(reasons) > 0 || risk != RiskLow

	if len(reasons) == 0 {
		reasons = []string{"Standard processing - no sensitive content detected"}
	}

	return Decision{
		RequiresApproval: requiresApproval,
		Reasons:          reasons,
		ActionType:       actionType,
		RiskLevel:        risk,
		SuggestedAction:  suggestAction(actionType, requiresApproval),
	}
}

// KnowsContact reports whether an address is in the known-contacts set.
func (c *Classifier) KnowsContact(email string) bool {
	return c.knownContacts[strings.ToLower(email)]
}

// detectActionType is a secondary deterministic classifier over keywords
// and source metadata.
func detectActionType(lower string, metadata map[string]any) ActionType {
	source := strings.ToLower(stringFromMeta(metadata, "source"))

	// Email-sourced tasks
	if strings.Contains(source, "gmail") || strings.Contains(source, "email") {
		switch {
		case strings.Contains(lower, "reply"), strings.Contains(lower, "respond"):
			return ActionReplyEmail
		case strings.Contains(lower, "send"), strings.Contains(lower, "compose"):
			return ActionSendEmail
		default:
			return ActionInformation
		}
	}

	// File operations
	if strings.Contains(lower, "delete") || strings.Contains(lower, "remove") {
		return ActionDeleteFile
	}
	if strings.Contains(lower, "create") || strings.Contains(lower, "write") {
		return ActionCreateFile
	}

	// Payments
	if containsAny(lower, []string{"pay", "payment", "transfer", "invoice"}) {
		return ActionPayment
	}

	// Social media
	if containsAny(lower, []string{"post", "tweet", "linkedin", "facebook"}) {
		if strings.Contains(lower, "reply") || strings.Contains(lower, "comment") {
			return ActionSocialReply
		}
		return ActionSocialPost
	}

	// Scheduling
	if containsAny(lower, []string{"schedule", "calendar", "meeting", "appointment"}) {
		return ActionSchedule
	}

	// Archive/organize
	if containsAny(lower, []string{"archive", "organize", "file", "categorize"}) {
		return ActionArchive
	}

	return ActionUnknown
}

// extractAmounts returns all dollar amounts found in the content, in
// order of appearance.
func extractAmounts(content string) []float64 {
	var amounts []float64
	for _, match := range amountPattern.FindAllStringSubmatch(content, -1) {
		raw := strings.ReplaceAll(match[1], ",", "")
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		amounts = append(amounts, amount)
	}
	return amounts
}

// suggestAction produces the plan artifact's suggested next action.
func suggestAction(actionType ActionType, requiresApproval bool) string {
	if requiresApproval {
		return "Move to Pending_Approval for human review"
	}

	switch actionType {
	case ActionReplyEmail:
		return "Draft reply and auto-send to known contact"
	case ActionInformation:
		return "Categorize and archive"
	case ActionArchive:
		return "Move to appropriate folder"
	case ActionSchedule:
		return "Add to calendar"
	case ActionCreateFile:
		return "Create file in vault"
	default:
		return "Process and move to Done"
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func stringFromMeta(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	v, _ := metadata[key].(string)
	return v
}
