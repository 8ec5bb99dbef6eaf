package voice

import "testing"

func TestMessagesQuoteTranscriptVerbatim(t *testing.T) {
	transcript := `ir para "vagas"` + "\tagora"

	if got, want := matchedDescription(transcript), "Executando: \"ir para \"vagas\"\tagora\""; got != want {
		t.Fatalf("matchedDescription = %q, want %q", got, want)
	}
	if got, want := notUnderstoodDescription([]string{"voltar", "ir para início"}), `Tente falar: "voltar" ou "ir para início"`; got != want {
		t.Fatalf("notUnderstoodDescription = %q, want %q", got, want)
	}
	hint := SpokenHint(transcript, []string{"voltar", "melhorar currículo", "achar emprego"})
	if want := "Não entendi \"ir para \"vagas\"\tagora\". Você pode falar: voltar, melhorar currículo, ou achar emprego."; hint != want {
		t.Fatalf("SpokenHint = %q, want %q", hint, want)
	}
}

func TestErrorMessageFallsBackToCause(t *testing.T) {
	if got := ErrorMessage("no-speech"); got != "Não ouvi sua voz. Fale mais perto do microfone." {
		t.Fatalf("unexpected message %q", got)
	}
	if got := ErrorMessage("quota"); got != "Erro: quota" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
