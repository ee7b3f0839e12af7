package tools

import "github.com/rahul/ordermind/internal/records"

// Deps carries the collaborators the built-in tools need. Nil collaborators
// leave their tools out.
type Deps struct {
	Records  records.Store
	Sheets   OrderSheetWriter
	Workflow WorkflowEngine
	WhatsApp WhatsAppSender
	Chats    map[string]ChatSender
	BaseURL  string
}

// Builtins returns the statically declared tool catalog.
func Builtins(d Deps) []Tool {
	var out []Tool
	if d.Records != nil {
		out = append(out,
			&ListRecordsTool{Store: d.Records},
			&CreateRecordTool{Store: d.Records, BaseURL: d.BaseURL},
			&UpdateRecordTool{Store: d.Records, BaseURL: d.BaseURL},
			&SalesReportTool{Store: d.Records},
		)
		if d.Sheets != nil {
			out = append(out, &ExportSpreadsheetTool{Store: d.Records, Writer: d.Sheets})
		}
	}
	if d.WhatsApp != nil {
		out = append(out, &SendWhatsAppTool{Sender: d.WhatsApp})
	}
	if len(d.Chats) > 0 {
		out = append(out, &SendNotificationTool{Channels: d.Chats})
	}
	if d.Workflow != nil {
		out = append(out,
			&CreateRemittanceTaskTool{Engine: d.Workflow},
			&GetRemittanceTaskTool{Engine: d.Workflow},
			&ConfirmRemittanceTaskTool{Engine: d.Workflow},
		)
	}
	return out
}
