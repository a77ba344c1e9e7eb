package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// message is a rendered-on-demand email for one notification kind.
type message struct {
	subject string
	body    func(data templateData) templ.Component
}

type templateData struct {
	FullName        string
	SubscriptionURL string
}

func (d templateData) greetingName() string {
	if d.FullName == "" {
		return "Assinante"
	}
	return d.FullName
}

var messages = map[subscription.NotificationKind]message{
	subscription.NotificationPastDue: {
		subject: "Precisamos da sua atenção sobre sua assinatura 149Psi",
		body: func(d templateData) templ.Component {
			return layout(
				heading("Olá"),
				paragraph("Não conseguimos processar a renovação da sua assinatura recentemente."),
				paragraph("Para garantir que você continue acessando todos os recursos premium e seus dados de pacientes sem interrupções, por favor verifique seus dados de pagamento."),
				paragraph("Você ainda tem acesso garantido pelos próximos dias (Período de Tolerância)."),
				button(d.SubscriptionURL, "Atualizar Pagamento Agora"),
			)
		},
	},
	subscription.NotificationReactivated: {
		subject: "Pagamento Confirmado: Sua assinatura está ativa!",
		body: func(templateData) templ.Component {
			return layout(
				heading("Obrigado!"),
				paragraph("Recebemos seu pagamento e sua assinatura está 100% ativa novamente."),
			)
		},
	},
	subscription.NotificationCanceled: {
		subject: "Confirmação de Cancelamento",
		body: func(templateData) templ.Component {
			return layout(
				heading("Sua assinatura foi cancelada"),
				paragraph("Sentiremos sua falta. Se houve algum problema, por favor nos avise."),
				paragraph("Seus dados permanecerão salvos caso decida voltar."),
			)
		},
	},
	subscription.NotificationGraceWarning: {
		subject: "Lembrete: Seu acesso premium expira em breve",
		body: func(d templateData) templ.Component {
			return layout(
				heading("Olá, "+d.greetingName()),
				paragraph("Este é um lembrete amigável de que o pagamento da sua assinatura ainda está pendente."),
				paragraph("Para garantir que você não perca o acesso aos prontuários, agendamentos e outros dados importantes, regularize sua situação nos próximos 3 dias."),
				paragraph("Estamos aqui para apoiar sua prática clínica."),
				button(d.SubscriptionURL, "Manter meu Acesso"),
			)
		},
	},
}

func layout(children ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="pt-BR"><body style="font-family:Arial,sans-serif;color:#1f2937;">`); err != nil {
			return err
		}
		for _, c := range children {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func heading(text string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, "<h1>%s</h1>", templ.EscapeString(text))
		return err
	})
}

func paragraph(text string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, "<p>%s</p>", templ.EscapeString(text))
		return err
	})
}

func button(href, label string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		safe := templ.URL(href)
		_, err := fmt.Fprintf(w,
			`<p><a href="%s" style="display:inline-block;padding:12px 20px;background:#4f46e5;color:#ffffff;text-decoration:none;border-radius:6px;">%s</a></p>`,
			templ.EscapeString(string(safe)), templ.EscapeString(label))
		return err
	})
}
