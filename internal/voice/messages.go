package voice

import (
	"strings"

	"github.com/loqalabs/voicenav/internal/recognition"
)

const (
	titleMatched       = "Entendi!"
	titleNotUnderstood = "Não entendi"
	titleVoiceProblem  = "Problema com a voz"

	initFailedMessage = "Falha ao inicializar reconhecimento de voz"
)

var causeMessages = map[recognition.Cause]string{
	recognition.CauseNoSpeech:             "Não ouvi sua voz. Fale mais perto do microfone.",
	recognition.CauseAudioCapture:         "Problema com o microfone. Verifique se está funcionando.",
	recognition.CauseNotAllowed:           `Preciso que você permita usar o microfone. Clique em "Permitir".`,
	recognition.CauseNetwork:              "Sem internet. Verifique sua conexão.",
	recognition.CauseLanguageNotSupported: "Seu celular não entende português.",
	recognition.CauseServiceNotAllowed:    "Comando de voz não funciona agora.",
	recognition.CauseAborted:              "Cancelado.",
	recognition.CauseBadGrammar:           "Não entendi. Fale mais devagar.",
}

// ErrorMessage returns the user-facing text for a recognition failure.
func ErrorMessage(cause recognition.Cause) string {
	if msg, ok := causeMessages[cause]; ok {
		return msg
	}
	return "Erro: " + string(cause)
}

func matchedDescription(transcript string) string {
	return "Executando: " + quote(transcript)
}

// notUnderstoodDescription lists the first three example phrases.
func notUnderstoodDescription(examples []string) string {
	if len(examples) > 3 {
		examples = examples[:3]
	}
	quoted := make([]string, len(examples))
	for i, e := range examples {
		quoted[i] = quote(e)
	}
	return "Tente falar: " + joinPortuguese(quoted)
}

// SpokenHint is the sentence spoken when a transcript matches nothing.
func SpokenHint(transcript string, examples []string) string {
	return "Não entendi " + quote(transcript) + ". Você pode falar: " + joinPortuguese(examples, ", ou ") + "."
}

// quote wraps s in double quotes as is. Transcripts are shown and spoken, so
// nothing is escaped.
func quote(s string) string {
	return `"` + s + `"`
}

// joinPortuguese joins items as "a, b ou c". last overrides the final
// separator.
func joinPortuguese(items []string, last ...string) string {
	sep := " ou "
	if len(last) > 0 {
		sep = last[0]
	}
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + sep + items[len(items)-1]
}
