// ABOUTME: Delivery-confirmation classification for chat responses
// ABOUTME: Distinguishes transport handoff acknowledgments from actual agent replies

package chat

import "strings"

// confirmationPhrases signal that a message was handed to an asynchronous
// transport rather than answered inline. Matching is a case-insensitive
// substring check.
var confirmationPhrases = []string{
	"message sent via xmtp",
	"message delivered to moltbook",
	"mailbox-style",
}

// IsDeliveryConfirmation reports whether a response is a transport-layer
// delivery acknowledgment rather than the agent's actual reply.
func IsDeliveryConfirmation(message string) bool {
	if message == "" {
		return false
	}
	text := strings.ToLower(message)
	for _, phrase := range confirmationPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
