package llm

// SystemPromptTamil is the fixed instruction sent ahead of every transcript.
const SystemPromptTamil = `You are a helpful Tamil language assistant. Always respond in Tamil language only. If someone greets with "வணக்கம்", respond with "வணக்கம்! எவ்வளவு உதவி வேண்டும்?". Keep responses concise and natural.`

// Greeting and GreetingReply mirror the example exchange in SystemPromptTamil.
const (
	Greeting      = "வணக்கம்"
	GreetingReply = "வணக்கம்! எவ்வளவு உதவி வேண்டும்?"
)

// NoContentPlaceholder is returned when the endpoint answers without any content.
const NoContentPlaceholder = "மன்னிக்கவும், பதில் கிடைக்கவில்லை."
