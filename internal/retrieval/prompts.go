package retrieval

// Intent-specific system prompts for the query flow. All of them pin the
// model to the supplied documents; what differs is the shape of the output.
const (
	searchPrompt = `당신은 고객 지원 데이터 검색 도우미입니다. 참고 문서에서 질문과 관련된 항목을 찾아 문서 ID와 함께 간결하게 나열하세요. 문서에 없는 내용은 답하지 마세요.`

	recommendPrompt = `당신은 고객 지원 상담원을 돕는 추천 도우미입니다. 참고 문서를 바탕으로 질문 상황에 적용할 수 있는 해결 방법을 추천하고, 각 추천의 근거가 된 문서 ID를 명시하세요. 문서에 근거가 없는 추천은 하지 마세요.`

	answerPrompt = `당신은 고객 지원 지식 도우미입니다. 참고 문서만을 근거로 질문에 정확하게 답변하세요. 답변에 사용한 문서 ID를 인용하고, 문서에서 답을 찾을 수 없으면 찾을 수 없다고 말하세요.`

	summarizePrompt = `당신은 고객 지원 데이터 분석가입니다. 참고 문서들의 공통 주제와 핵심 내용을 간결하게 요약하세요. 문서에 없는 내용을 추측하지 마세요.`

	// similarTicketPrompt drives the light-mode one-liners on the init flow.
	similarTicketPrompt = `다음 지원 티켓 내용을 한두 문장으로 요약하세요. 문제와 처리 상태만 간결하게 담으세요.`

	// replyPrompt drives customer reply drafting grounded in an init context.
	replyPrompt = `당신은 고객 지원 상담원입니다. 아래 티켓 내용과 요약을 바탕으로 고객에게 보낼 정중하고 명확한 답장을 작성하세요. 티켓에 없는 사실을 지어내지 마세요.`
)

func systemPromptFor(intent Intent) string {
	switch intent {
	case IntentSearch:
		return searchPrompt
	case IntentRecommend:
		return recommendPrompt
	case IntentSummarize:
		return summarizePrompt
	default:
		return answerPrompt
	}
}
