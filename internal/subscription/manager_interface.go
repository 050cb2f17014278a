package subscription

type Manager interface {
	// Subscribe registers a listener for a post on behalf of viewer (0 for
	// anonymous); the returned func unregisters it and closes the channel.
	Subscribe(postID string, viewer uint) (<-chan *Event, func())
	Publish(postID string, event *Event)
}
