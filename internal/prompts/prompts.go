package prompts

import (
	"fmt"
	"strings"
)

const ContextualizeQuestion = `Given a conversation history and the most recent user query, rewrite the query as a standalone question that makes sense without relying on the previous context.
Do not provide an answer. Only reformulate the question if necessary; otherwise, return it unchanged.`

const contextQATemplate = `You are an assistant designed to answer questions using the provided context. Rely only on the retrieved information to form your response.
If the answer is not found in the context, respond with "I don't know."
Keep your answer concise and no longer than three sentences.

Context:
%s`

const documentAnalysisTemplate = `You are a highly capable assistant trained to analyze and summarize documents.
Return only valid JSON matching the exact schema below.

%s

Analyze this document:
%s`

const documentComparisonTemplate = `You will be provided with content from two documents. Your tasks are as follows:

1. Compare the content in two documents.
2. Identify the differences and note down the page numbers.
3. The output you provide must be a page wise comparison, in ascending page order.
4. Every page that appears in either document needs exactly one entry. If a page has no change, set Changes to "No Change".

Input documents:

%s

Your response should follow this format:

%s`

const repairTemplate = `The previous response could not be used.

Validation error:
%s

Previous response:
%s

Return a corrected response that follows these instructions exactly. Output JSON only, no commentary and no code fences.

%s`

// ContextQA embeds retrieved context into the grounded answering instruction.
// The context always follows a "Context:" line.
func ContextQA(context string) string {
	return fmt.Sprintf(contextQATemplate, strings.TrimSpace(context))
}

func DocumentAnalysis(formatInstructions, documentText string) string {
	return fmt.Sprintf(documentAnalysisTemplate, formatInstructions, documentText)
}

func DocumentComparison(combinedDocs, formatInstructions string) string {
	return fmt.Sprintf(documentComparisonTemplate, combinedDocs, formatInstructions)
}

func Repair(validationErr, rawOutput, formatInstructions string) string {
	return fmt.Sprintf(repairTemplate, validationErr, rawOutput, formatInstructions)
}
