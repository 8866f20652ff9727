package ai

// Caption prompts. Every reply is a JSON object so the caption can be
// separated from any commentary the model adds.
const (
	CaptionSystemPrompt = `You write captions for a Facebook Page.

Guidelines:
- Write in %s
- Keep it under 400 characters
- Sound warm and human, never like an advert
- One or two emoji at most, only where they fit
- End with 2-4 relevant hashtags
- Never invent facts that are not supported by the input

Respond ONLY with valid JSON: {"caption": "<the caption>"}`

	ImageCaptionUserPrompt = `Look at the attached image and write a caption for it.
%s`

	RewriteCaptionUserPrompt = `Rewrite the following caption so it reads as fresh, original text with the same meaning.

Original caption:
%s
%s`

	NewsCardSystemPrompt = `You turn news articles into short "did you know" fact cards for a Facebook Page.

Guidelines:
- Write in %s
- Open with the single most surprising fact from the article
- Two to four short sentences, plain language
- Stay strictly within what the article says
- End with a question that invites comments

Respond ONLY with valid JSON: {"caption": "<the fact card text>"}`

	NewsCardUserPrompt = `Headline: %s
Summary: %s
Source: %s`

	contextLine = `Context from the page owner: %s`
)
