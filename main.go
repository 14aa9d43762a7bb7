package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	actionx "github.com/rxgenie/rxgenie/agent/agents/action"
	orderingx "github.com/rxgenie/rxgenie/agent/agents/ordering"
	refillx "github.com/rxgenie/rxgenie/agent/agents/refill"
	safetyx "github.com/rxgenie/rxgenie/agent/agents/safety"
	contractx "github.com/rxgenie/rxgenie/agent/contract"
	notifyx "github.com/rxgenie/rxgenie/agent/notify"
	orchestratorx "github.com/rxgenie/rxgenie/agent/orchestrator"
	configx "github.com/rxgenie/rxgenie/pkg/config"
	groqx "github.com/rxgenie/rxgenie/pkg/groq"
	_ "github.com/rxgenie/rxgenie/pkg/logger/autoload"
	webhookx "github.com/rxgenie/rxgenie/pkg/webhook"
	storex "github.com/rxgenie/rxgenie/store"
)

var (
	patientID        = flag.String("patient", "", "patient id placing the order")
	orderText        = flag.String("text", "", "free-form order text")
	prescriptionText = flag.String("prescription", "", "optional prescription text")
)

func main() {
	groqCfg := configx.MustNew[groqx.Config]("GROQ")
	extractLLM := groqx.MustNewClient(*groqCfg, groqCfg.ExtractModel)
	expertLLM := groqx.MustNewClient(*groqCfg, groqCfg.ExpertModel)

	storeCfg := configx.MustNew[storex.Config]("POSTGRES")
	db := storex.MustOpen(*storeCfg)
	defer db.Close()

	inventory := storex.NewInventoryRepo(db)
	ledger := storex.NewOrderRepo(db)
	traces := storex.NewTraceRepo(db)
	patients := storex.NewPatientRepo(db)

	webhookCfg := configx.MustNew[webhookx.Config]("WEBHOOK")

	actionOpts := []actionx.Option{}
	refillOpts := []refillx.Option{}
	if webhookCfg.URL != "" {
		hook := webhookx.MustNew(*webhookCfg)
		notifier, err := notifyx.NewRefillNotifier(hook)
		if err != nil {
			panic(err)
		}
		actionOpts = append(actionOpts, actionx.WithHook(hook))
		refillOpts = append(refillOpts, refillx.WithNotifier(notifier))
	}

	ordering, err := orderingx.New(extractLLM, traces)
	if err != nil {
		panic(err)
	}
	safety, err := safetyx.New(expertLLM, inventory, traces)
	if err != nil {
		panic(err)
	}
	action, err := actionx.New(ledger, inventory, traces, actionOpts...)
	if err != nil {
		panic(err)
	}
	refill, err := refillx.New(expertLLM, ledger, patients, traces, refillOpts...)
	if err != nil {
		panic(err)
	}

	orch, err := orchestratorx.New(ordering, safety, action, refill, traces)
	if err != nil {
		panic(err)
	}

	if *orderText == "" || *patientID == "" {
		fmt.Fprintln(os.Stderr, "usage: rxgenie -patient <id> -text <order text> [-prescription <text>]")
		os.Exit(2)
	}

	sessionID := uuid.NewString()
	resp := orch.ProcessChatOrder(context.Background(), sessionID, contractx.ChatOrderRequest{
		PatientID:        *patientID,
		Text:             *orderText,
		PrescriptionText: *prescriptionText,
	})

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		panic(err)
	}
	fmt.Println(string(out))
}
