package chattemplate

// builtinTemplate returns the restricted-grammar template source for
// family. Each string is itself valid input to render (engine.go) so
// the built-in families exercise exactly the same interpreter a
// model-supplied config.chatTemplate does; only the literal token
// strings differ (spec.md §4.10: "exact token strings are part of the
// contract").
func builtinTemplate(family Family) string {
	switch family {
	case FamilyMistral:
		return "" +
			"{bos_token}{for message in messages}" +
			"{if message.role == 'system'}<<SYS>>\n{{ message.content }}\n<</SYS>>\n\n" +
			"{elif message.role == 'user'}[INST] {{ message.content }} [/INST]" +
			"{elif message.role == 'assistant'}{{ message.content }}{eos_token}" +
			"{endif}{endfor}"
	case FamilyChatML:
		return "" +
			"{for message in messages}<|im_start|>{{ message.role }}\n{{ message.content }}<|im_end|>\n{endfor}" +
			"<|im_start|>assistant\n"
	case FamilyAlpaca:
		return "" +
			"{for message in messages}" +
			"{if message.role == 'system'}{{ message.content }}\n\n" +
			"{elif message.role == 'user'}### Instruction:\n{{ message.content }}\n\n" +
			"{elif message.role == 'assistant'}### Response:\n{{ message.content }}\n\n" +
			"{endif}{endfor}### Response:\n"
	case FamilyCodeLlama:
		return "" +
			"{for message in messages}" +
			"{if message.role == 'user'}### Instruction:\n{{ message.content }}\n" +
			"{elif message.role == 'assistant'}### Response:\n{{ message.content }}\n" +
			"{endif}{endfor}### Response:\n"
	case FamilyVicuna:
		return "" +
			"{for message in messages}" +
			"{if message.role == 'system'}{{ message.content }}\n\n" +
			"{elif message.role == 'user'}USER: {{ message.content }}\n" +
			"{elif message.role == 'assistant'}ASSISTANT: {{ message.content }}\n" +
			"{endif}{endfor}ASSISTANT: "
	case FamilyLlama3:
		fallthrough
	default:
		return "" +
			"{bos_token}{for message in messages}" +
			"<|start_header_id|>{{ message.role }}<|end_header_id|>\n\n{{ message.content }}<|eot_id|>\n" +
			"{endfor}<|start_header_id|>assistant<|end_header_id|>\n\n"
	}
}
