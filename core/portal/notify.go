package portal

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/catalog"
	"github.com/trezcool/beet/core/progress"
)

// CompletionNotice is the data of the module_complete email template.
type CompletionNotice struct {
	Learner string
	Module  string
	Next    string // title of the following module, empty after the last one
	Count   int
	Total   int
}

// NotifyCompletions emails the coordinators each time a learner completes a module through this process.
func (svc *Service) NotifyCompletions(mailer core.EmailService, to ...mail.Address) (unsubscribe func()) {
	filter := progress.Filter{Match: progress.Prefix(catalog.CompleteNS + "-"), Scope: progress.ScopeLocal}
	return svc.progress.Bus().Subscribe(filter, func(c progress.Change) {
		if !c.Present || !c.Value.Bool || len(to) == 0 {
			return
		}
		msg, ok := svc.completionMessage(c.Learner, strings.TrimPrefix(c.Key, catalog.CompleteNS+"-"))
		if !ok {
			return
		}
		msg.To = to
		mailer.SendMessages(msg)
	})
}

func (svc *Service) completionMessage(learner, id string) (*core.EmailMessage, bool) {
	mod, ok := svc.catalog.Module(id)
	if !ok {
		return nil, false
	}
	status := mod.Gate().Evaluate(context.Background(), svc.progress.Store(learner))

	notice := CompletionNotice{Learner: learner, Module: mod.Title, Count: status.Count, Total: status.Total}
	for i, m := range svc.catalog.Modules {
		if m.ID == mod.ID && i+1 < len(svc.catalog.Modules) {
			notice.Next = svc.catalog.Modules[i+1].Title
		}
	}
	return &core.EmailMessage{
		Subject:      fmt.Sprintf("%s completed %s", learner, mod.Title),
		TemplateName: "module_complete",
		TemplateData: notice,
	}, true
}
