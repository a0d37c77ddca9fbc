package agentcore

// The terminal "channel application" stage (spec.md §4.8 step 6) is not
// a Layer: unlike the preceding layers it does not fire an upstream
// event of its own before handing off bytes, it IS the handoff. See
// ProtocolStack.Negotiate in stack.go, which calls the channel.Builder
// directly once every Layer has finished and fires EventChannelOpen
// itself.
