package dialogue

const (
	IntentGreet            = "greet"
	IntentGoodbye          = "goodbye"
	IntentReportSymptoms   = "report_symptoms"
	IntentMedicalAdvice    = "ask_medical_advice"
	IntentDiseaseInfo      = "ask_about_disease"
	IntentMedicationInfo   = "ask_medication"
	IntentDuration         = "ask_duration"
	IntentEmergency        = "emergency"
	IntentAffirm           = "affirm"
	IntentDeny             = "deny"
	IntentAskClarification = "ask_clarification"
)

const (
	ClarifyReply = "عذرًا، ممكن توضح سؤالك أكتر؟"
	AffirmReply  = "تمام 😊، إزاي ممكن أساعدك أكتر؟"
	DenyReply    = "ماشي 👌، تحب تسأل عن حاجة تانية؟"
	RepeatReply  = "أكيد! ممكن توضح أكتر؟"

	// EmergencyReply is returned verbatim for the emergency intent.
	EmergencyReply = " حالة طوارئ!\n" +
		"يرجى الاتصال برقم الطوارئ فوراً:\n" +
		" 911 أو 123\n\n" +
		"أو توجه إلى أقرب مستشفى فوراً!"
)

type handlerKind uint8

const (
	// handlerGenerate asks the generator using only the accumulated context.
	handlerGenerate handlerKind = iota + 1
	handlerCanned
	// handlerSafety never reaches the generator.
	handlerSafety
)

type handler struct {
	kind  handlerKind
	reply string
}

// dispatchTable is fixed at build time. Intents missing from it fall through
// to the generator with the raw utterance as topic.
var dispatchTable = map[string]handler{
	IntentGreet:            {kind: handlerGenerate},
	IntentGoodbye:          {kind: handlerGenerate},
	IntentReportSymptoms:   {kind: handlerGenerate},
	IntentMedicalAdvice:    {kind: handlerGenerate},
	IntentDiseaseInfo:      {kind: handlerGenerate},
	IntentMedicationInfo:   {kind: handlerGenerate},
	IntentDuration:         {kind: handlerGenerate},
	IntentAffirm:           {kind: handlerCanned, reply: AffirmReply},
	IntentDeny:             {kind: handlerCanned, reply: DenyReply},
	IntentAskClarification: {kind: handlerCanned, reply: RepeatReply},
	IntentEmergency:        {kind: handlerSafety, reply: EmergencyReply},
}
