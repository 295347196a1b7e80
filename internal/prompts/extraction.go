package prompts

// extractionPrompt asks the completion backend to judge a conversation
// and emit either a JSON object of salient facts or an empty object.
// The conversation serialization is appended after this text.
const extractionPrompt = `In a conversation between a human and an AI chatbot designed to help improve the user's mental health, the human has sent the following messages. Examine the content to determine if it is significant enough to be saved in the chatbot's long-term memory for future reference, particularly to improve context for both current and future conversations.

CONTEXT
- The AI chatbot is acting as a companion to the human, aiming to offer empathetic support, keep track of mental health progress, and provide personalized advice.

Messages that convey personal information, emotional states, important life events, or any information that might help in understanding or supporting the user in future interactions are considered important.

**Important Information to Store**:
- **Personal Information**: Any details about the user (e.g., name, preferences).
- **Emotional State**: Information on how the user is feeling, any stress or mood-related details.
- **Significant Events**: Major life updates or changes (e.g., personal goals, relationships, milestones).
- **Preferences & Dislikes**: Things the user likes, dislikes, or has expressed a preference for (e.g., activities, coping methods).
- **Behavioral Patterns/Corrections**: Feedback or corrections on previous interactions.

If the message contains relevant or important information, extract and organize the key details as a JSON object. If nothing is important, output an empty JSON object.

### EXAMPLES
Example 1:
message: {"User": "I prefer to talk to you than a therapist"}
OUTPUT:
{
  "Preference": "Prefers talking to the chatbot rather than a therapist"
}

Example 2:
message: {"Chatbot": "hi, how are you", "User": "I am doing okay, just a little tired"}
OUTPUT: {}

REMEMBER: OUTPUT EITHER THE IMPORTANT KEY INFORMATION AS JSON OR {} (AN EMPTY JSON OBJECT). NO COMMENTS.

Below is the conversation:

`

// RenderExtraction appends the serialized conversation to the
// extraction instruction.
func RenderExtraction(conversation string) string {
	return extractionPrompt + conversation
}
