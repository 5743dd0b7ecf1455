package models

const (
	ContextSeparator = "\n"
	SourceSeparator  = "\n\n"
)

// prompt templates use go template syntax, rendered by langchaingo prompts
var (
	SummaryPromptTemplate = `Summarize the following document in less than 150 words:
{{.context}}
`

	ChallengePromptTemplate = `Based on the following document, generate exactly 3 logic-based questions for comprehension.
Number them 1, 2 and 3 and do not include the answers.
{{.context}}
`

	EvaluationPromptTemplate = `Evaluate the user's answers:
Context: {{.context}}
Questions:
{{.questions}}
User Answers:
1. {{.a1}}
2. {{.a2}}
3. {{.a3}}
Provide detailed feedback for each answer with justification from the context.
`

	QAPromptTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.context}}

Question: {{.question}}
Helpful Answer:`
)
