package graph

// Config map keys (used under config["configurable"]).
const (
	CfgKeyConfigurable   = "configurable"
	CfgKeyThreadID       = "thread_id"
	CfgKeyCheckpointID   = "checkpoint_id"
	CfgKeyCheckpointNS   = "checkpoint_ns"
	CfgKeyResumeMap      = "resume_map"
	CfgKeyRecursionLimit = "recursion_limit"
)

// Channel naming conventions used by graph compilation.
const (
	// ChannelBranchPrefix prefixes the trigger channel of a node: writing
	// to "branch:to:<node>" schedules that node for the next superstep.
	ChannelBranchPrefix = "branch:to:"
	// ChannelJoinPrefix prefixes barrier channels created for join edges:
	// "join:to:<node>" fires only once all declared writers have run.
	ChannelJoinPrefix = "join:to:"
	// ChannelInputPrefix marks channel names as internal wiring, so they are
	// left out of update events. Compilation creates no such channel: the
	// run input is written directly to the state channels.
	ChannelInputPrefix = "input:"
)

// GetThreadID extracts the thread id from a run configuration.
func GetThreadID(config map[string]any) string {
	return configurableString(config, CfgKeyThreadID)
}

// GetCheckpointID extracts the checkpoint id from a run configuration.
func GetCheckpointID(config map[string]any) string {
	return configurableString(config, CfgKeyCheckpointID)
}

// GetNamespace extracts the checkpoint namespace from a run configuration.
func GetNamespace(config map[string]any) string {
	return configurableString(config, CfgKeyCheckpointNS)
}

// GetResumeMap extracts the resume map from a run configuration.
func GetResumeMap(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	if configurable, ok := config[CfgKeyConfigurable].(map[string]any); ok {
		if resumeMap, ok := configurable[CfgKeyResumeMap].(map[string]any); ok {
			return resumeMap
		}
	}
	return nil
}

func configurableString(config map[string]any, key string) string {
	if config == nil {
		return ""
	}
	if configurable, ok := config[CfgKeyConfigurable].(map[string]any); ok {
		if v, ok := configurable[key].(string); ok {
			return v
		}
	}
	return ""
}

// CreateCheckpointConfig builds the configurable map that savers key on.
func CreateCheckpointConfig(threadID, checkpointID, namespace string) map[string]any {
	configurable := map[string]any{CfgKeyThreadID: threadID}
	if checkpointID != "" {
		configurable[CfgKeyCheckpointID] = checkpointID
	}
	if namespace != "" {
		configurable[CfgKeyCheckpointNS] = namespace
	}
	return map[string]any{CfgKeyConfigurable: configurable}
}
