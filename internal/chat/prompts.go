package chat

// SystemPrompt frames every completion request.
const SystemPrompt = `You are a compassionate mental health support assistant for YouthWell, a platform for young people aged 12-25 in Australia.

Your role:
- Provide empathetic, non-judgmental support for mental health concerns
- Offer coping strategies and self-care tips
- Encourage professional help when needed
- NEVER diagnose or provide medical advice
- Always prioritize safety: if someone mentions self-harm or suicide, provide crisis hotlines

Guidelines:
- Use warm, supportive language
- Ask open-ended questions to understand their feelings
- Validate their emotions
- Keep responses concise (2-4 paragraphs max)

You are a supportive companion, not a replacement for professional help.`

const primer = "I understand. I am here to provide compassionate mental health support for young people. I will prioritize safety, never diagnose, and encourage professional help when needed. How can I support you today?"

const (
	emptyReply     = "I apologize, but I had trouble processing that. Could you rephrase your message?"
	fallbackReply  = "I apologize, but I encountered an error. Please try again. If you need immediate support, please call:"
	highDemand     = "I apologize, but the AI service is currently experiencing high demand. Please try again in a few moments, or contact the crisis hotlines if you need immediate support:"
	crisisPreamble = "It sounds like you are going through something really painful. You do not have to face it alone. Please reach out right now:"
	rejectedReply  = "Sorry, that message could not be sent. Please remove any links or code and try again."
)

var suggestedPrompts = []string{
	"I'm feeling anxious about school...",
	"I've been feeling down lately...",
	"How can I deal with stress?",
	"I'm having trouble sleeping...",
	"I feel lonely and isolated...",
	"How do I talk to someone about my feelings?",
}

// SuggestedPrompts returns conversation starters for the chat UI.
func SuggestedPrompts() []string {
	return append([]string(nil), suggestedPrompts...)
}
