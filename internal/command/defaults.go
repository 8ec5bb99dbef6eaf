package command

// defaultEntries is the pt-BR phrase table of the mobile front-end. Phrases
// sharing words are listed most-specific first within each group.
var defaultEntries = []Entry{
	// navegação principal
	{"ir para home", Navigate("/")},
	{"página inicial", Navigate("/")},
	{"ir para início", Navigate("/")},
	{"início", Navigate("/")},
	{"voltar", Effect(EffectHistoryBack)},
	{"avançar", Effect(EffectHistoryForward)},

	// currículo
	{"melhorar currículo", Navigate("/curriculo/analise")},
	{"analisar currículo", Navigate("/curriculo/analise")},
	{"currículo", Navigate("/curriculo/analise")},
	{"cv", Navigate("/curriculo/analise")},
	{"curriculum", Navigate("/curriculo/analise")},

	// entrevista
	{"treinar entrevista", Navigate("/entrevista/simulacao")},
	{"simular entrevista", Navigate("/entrevista/simulacao")},
	{"entrevista", Navigate("/entrevista/simulacao")},
	{"praticar", Navigate("/entrevista/simulacao")},
	{"treinar", Navigate("/entrevista/simulacao")},

	// vagas
	{"achar emprego", Navigate("/vagas/busca")},
	{"buscar emprego", Navigate("/vagas/busca")},
	{"procurar emprego", Navigate("/vagas/busca")},
	{"emprego", Navigate("/vagas/busca")},
	{"trabalho", Navigate("/vagas/busca")},
	{"vagas", Navigate("/vagas/busca")},
	{"trampo", Navigate("/vagas/busca")},

	// cursos
	{"aprender", Navigate("/cursos")},
	{"estudar", Navigate("/cursos")},
	{"curso", Navigate("/cursos")},
	{"cursos", Navigate("/cursos")},
	{"capacitar", Navigate("/cursos")},

	// mentoria
	{"conversar", Navigate("/mentoria/chat")},
	{"dúvida", Navigate("/mentoria/chat")},
	{"pergunta", Navigate("/mentoria/chat")},
	{"mentoria", Navigate("/mentoria/chat")},

	// perfil e configurações
	{"meu perfil", Navigate("/perfil")},
	{"perfil", Navigate("/perfil")},
	{"configurar", Navigate("/configuracoes")},
	{"ajustar", Navigate("/configuracoes")},

	{"ajuda", Navigate("/ajuda")},
	{"tutorial", Navigate("/tutorial")},
	{"suporte", Navigate("/suporte")},
	{"contato", Navigate("/contato")},

	// interface
	{"rolar para cima", Effect(EffectScrollTop)},
	{"subir", Effect(EffectScrollTop)},
	{"rolar para baixo", Effect(EffectScrollBottom)},
	{"descer", Effect(EffectScrollBottom)},
	{"atualizar", Effect(EffectReload)},
	{"recarregar", Effect(EffectReload)},

	// acessibilidade
	{"aumentar fonte", Effect(EffectIncreaseFont)},
	{"diminuir fonte", Effect(EffectDecreaseFont)},
	{"modo escuro", Effect(EffectDarkModeOn)},
	{"modo claro", Effect(EffectDarkModeOff)},

	// pesquisa
	{"pesquisar", Navigate("/busca")},
	{"buscar", Navigate("/busca")},
	{"procurar", Navigate("/busca")},
}

// DefaultTable returns the built-in phrase table.
func DefaultTable() *Table {
	t, err := NewTable(defaultEntries)
	if err != nil {
		panic("command: invalid default table: " + err.Error())
	}
	return t
}

// Examples are the phrases suggested when a command is not understood.
func Examples() []string {
	return []string{"melhorar currículo", "treinar entrevista", "achar emprego", "voltar"}
}
