package events

// Topic constants for pricing rule lifecycle events.
const (
	TopicRuleSubmitted   = "pricing_rule.submitted"
	TopicRuleResubmitted = "pricing_rule.resubmitted"
	TopicRuleApproved    = "pricing_rule.approved"
	TopicRuleRejected    = "pricing_rule.rejected"
	TopicRuleSuperseded  = "pricing_rule.superseded"
)

// DefaultTopics returns the canonical list of topics emitted by the service.
func DefaultTopics() []string {
	return []string{
		TopicRuleSubmitted,
		TopicRuleResubmitted,
		TopicRuleApproved,
		TopicRuleRejected,
		TopicRuleSuperseded,
	}
}
