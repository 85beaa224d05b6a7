package funnel

import "math/rand/v2"

// simulatedScores is the fixed set a simulated score is drawn from.
var simulatedScores = []float64{6.2, 6.5, 6.8, 7.1, 7.4, 7.7, 8.0, 8.3, 8.6}

// Simulate returns a plausible Result without calling any provider. intn
// picks the score index; nil uses math/rand/v2.
func Simulate(intn func(n int) int) Result {
	if intn == nil {
		intn = rand.IntN
	}
	return Result{
		FunnelCoherenceScore: simulatedScores[intn(len(simulatedScores))],
		AdDiagnosis: "O anúncio apresenta uma proposta de valor identificável e utiliza elementos persuasivos adequados para capturar atenção. " +
			"A linguagem está direcionada ao público-alvo, porém há oportunidades de otimização na clareza da mensagem principal e no alinhamento com a página de destino. " +
			"O CTA está presente mas poderia ser mais específico e criar maior senso de urgência.",
		LandingPageDiagnosis: "A página de destino contém as informações fundamentais e mantém consistência com o anúncio. " +
			"A proposta de valor está presente, mas precisa ficar mais evidente no início da página para reduzir fricção. " +
			"Elementos de credibilidade, prova social e urgência poderiam ser reforçados para aumentar a conversão.",
		SyncSuggestions: []string{
			"Alinhe as palavras-chave e promessas específicas entre o anúncio e a headline da página de destino, usando a mesma linguagem e os mesmos benefícios",
			"Mantenha o mesmo tom de voz e nível de formalidade nos dois materiais para que a transição seja natural",
			"Faça a chamada para ação do anúncio corresponder ao botão principal da página, com verbos e urgência semelhantes",
			"Reforce prova social e urgência de forma consistente nas duas peças para construir credibilidade",
		},
		OptimizedAd: "🚀 Transforme seu Marketing Digital com Estratégias Comprovadas! Domine Facebook Ads, Google Ads e SEO com um método passo a passo testado por +1.000 empreendedores. " +
			"Resultados em 30 dias ou seu dinheiro de volta. ⚡ Oferta especial por tempo limitado! Clique agora e comece sua transformação → [CTA]",
	}
}

// EmergencyResult is the fixed answer used when the simulated tier fails.
func EmergencyResult() Result {
	return Result{
		FunnelCoherenceScore: 7.0,
		AdDiagnosis: "Não foi possível realizar uma análise completa do anúncio devido a problemas técnicos temporários. " +
			"Verifique se o anúncio comunica claramente a proposta de valor e mantém consistência com a página de destino.",
		LandingPageDiagnosis: "Não foi possível analisar completamente a página de destino devido a problemas técnicos temporários. " +
			"Certifique-se de que ela cumpre a promessa feita no anúncio e possui elementos de conversão claros.",
		SyncSuggestions: []string{
			"Mantenha consistência entre anúncio e página de destino usando linguagem similar",
			"Alinhe as propostas de valor apresentadas em ambos os materiais",
			"Certifique-se de que as expectativas criadas no anúncio sejam atendidas na página",
			"Use tom de voz e elementos visuais similares em ambos os materiais",
		},
		OptimizedAd: "🚀 [Produto/Serviço] que resolve [problema principal]. Desenvolvido para [público-alvo], oferece [benefício principal] com [garantia/prova social]. " +
			"Clique agora e [chamada para ação específica]!",
	}
}

// CriticalResult is served when the request handler itself fails after the
// request passed validation.
func CriticalResult() Result {
	return Result{
		FunnelCoherenceScore: 6.5,
		AdDiagnosis: "Ocorreu um erro técnico durante a análise. O sistema está funcionando, mas houve uma falha temporária. " +
			"Tente novamente em alguns minutos ou entre em contato com o suporte se o problema persistir.",
		LandingPageDiagnosis: "Não foi possível completar a análise devido a problemas técnicos temporários. " +
			"O serviço deve voltar ao normal em breve.",
		SyncSuggestions: []string{
			"Tente novamente em alguns minutos, pode ser um problema temporário",
			"Verifique se os textos estão completos e bem formatados",
			"Entre em contato com o suporte se o problema persistir por mais de 10 minutos",
			"Certifique-se de que sua conexão está estável e tente recarregar a página",
		},
		OptimizedAd: "Não foi possível gerar uma versão otimizada devido a problemas técnicos temporários. Tente novamente em alguns minutos.",
	}
}
