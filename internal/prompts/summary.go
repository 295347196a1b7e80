package prompts

// summaryPrompt condenses older history so long sessions stay within
// the completion backend's context budget.
const summaryPrompt = `You are a helpful assistant that summarizes the content of a chat between a chatbot and the user.
Your task is to provide a concise summary of the conversation, highlighting the main points and any important details. The summary should include:
- The main topics discussed
- Any questions or concerns raised by the user
- Key points made by the chatbot
- Any conclusions or next steps suggested
- The overall tone of the conversation (e.g., positive, negative, neutral)
The summary should be brief and to the point, avoiding excessive detail or repetition. Aim for 3-5 sentences focusing on the most relevant information.
This summary is meant for reducing the size of the conversation history to be used in the next conversation.
Here is the conversation history for you to summarize:

`

// RenderSummary appends the serialized history to the summary instruction.
func RenderSummary(history string) string {
	return summaryPrompt + history
}
