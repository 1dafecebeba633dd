// Copyright 2024-2026 Aiku AI

package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TagRule is one hashtag entry on a route's allow or deny list.
type TagRule struct {
	Name                    string `yaml:"name"`
	OverrideMentionEveryone bool   `yaml:"override_mention_everyone"`
}

// ChannelRef identifies a source channel either by numeric id or by display
// name. Which one was configured is resolved against the live channel list
// at startup.
type ChannelRef struct {
	ID   int64
	Name string
}

func (c *ChannelRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("source_channel must be a scalar, got %v", node.Kind)
	}
	if id, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		c.ID = id
		return nil
	}
	c.Name = node.Value
	return nil
}

func (c ChannelRef) String() string {
	if c.Name != "" {
		return c.Name
	}
	return strconv.FormatInt(c.ID, 10)
}

// Route is one configured forwarding rule. Routes are immutable after load;
// resolution only binds a live source channel to them.
type Route struct {
	Name               string              `yaml:"name"`
	SourceChannel      ChannelRef          `yaml:"source_channel"`
	DestinationChannel int64               `yaml:"destination_channel"`
	ForwardEverything  bool                `yaml:"forward_everything"`
	ForwardTags        []TagRule           `yaml:"forward_tags"`
	ExcludedTags       []TagRule           `yaml:"excluded_tags"`
	MentionOverride    map[string][]string `yaml:"mention_override"`
	MentionEveryone    bool                `yaml:"mention_everyone"`
	StripLinks         bool                `yaml:"strip_links"`
}

func (r *Route) UnmarshalYAML(node *yaml.Node) error {
	type rawRoute Route
	raw := rawRoute{ForwardEverything: true}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*r = Route(raw)
	return nil
}

// HasMentionOverride reports whether any hashtag on this route maps to an
// explicit set of role names.
func (r *Route) HasMentionOverride() bool {
	return len(r.MentionOverride) > 0
}

// GlobalConfig holds the engine-wide knobs.
type GlobalConfig struct {
	// HealthcheckInterval is the health probe and recovery tick interval,
	// in seconds.
	HealthcheckInterval int `yaml:"healthcheck_interval"`
	// RecoveryInterMessageDelay paces replayed messages, in seconds.
	RecoveryInterMessageDelay int `yaml:"recovery_inter_message_delay"`
	// LogUnhandledSourceDialogs warns about live dialogs that are excluded
	// from routing because they lack broadcast capability.
	LogUnhandledSourceDialogs bool `yaml:"log_unhandled_source_dialogs"`
	// BuiltInRoles are destination-platform mention names that need no
	// guild role lookup.
	BuiltInRoles []string `yaml:"built_in_roles"`
	// ProbeAddr is the TCP address dialed by the connectivity probe.
	ProbeAddr string `yaml:"probe_addr"`
}

// Config is the bridge engine configuration.
type Config struct {
	Routes []Route      `yaml:"routes"`
	Global GlobalConfig `yaml:"global"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

const (
	defaultHealthcheckInterval = 60
	defaultRecoveryDelay       = 60
	defaultProbeAddr           = "one.one.one.one:443"
)

// Validate applies defaults and enforces the route invariants. A non-nil
// error means the configuration is unusable and startup must abort.
func (c *Config) Validate() error {
	if c.Global.HealthcheckInterval == 0 {
		c.Global.HealthcheckInterval = defaultHealthcheckInterval
	}
	if c.Global.RecoveryInterMessageDelay == 0 {
		c.Global.RecoveryInterMessageDelay = defaultRecoveryDelay
	}
	if c.Global.ProbeAddr == "" {
		c.Global.ProbeAddr = defaultProbeAddr
	}
	if len(c.Global.BuiltInRoles) == 0 {
		c.Global.BuiltInRoles = []string{"everyone", "here"}
	}
	if c.Global.HealthcheckInterval < 30 || c.Global.HealthcheckInterval > 1200 {
		return fmt.Errorf("healthcheck_interval must be within [30, 1200] seconds, got %d", c.Global.HealthcheckInterval)
	}
	if c.Global.RecoveryInterMessageDelay < 10 || c.Global.RecoveryInterMessageDelay > 3600 {
		return fmt.Errorf("recovery_inter_message_delay must be within [10, 3600] seconds, got %d", c.Global.RecoveryInterMessageDelay)
	}

	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route must be configured")
	}

	names := make(map[string]struct{}, len(c.Routes))
	pairs := make(map[string]struct{}, len(c.Routes))
	// Allow-tag sets per source channel, to detect the same message being
	// forwarded twice by sibling routes.
	channelTags := make(map[string][]map[string]struct{})

	for i := range c.Routes {
		route := &c.Routes[i]
		if err := validateRoute(route); err != nil {
			return fmt.Errorf("route %q: %w", route.Name, err)
		}

		if _, dup := names[route.Name]; dup {
			return fmt.Errorf("duplicate route name %q", route.Name)
		}
		names[route.Name] = struct{}{}

		pair := route.SourceChannel.String() + "\x00" + strconv.FormatInt(route.DestinationChannel, 10)
		if _, dup := pairs[pair]; dup {
			return fmt.Errorf("route %q duplicates the source/destination pair of another route", route.Name)
		}
		pairs[pair] = struct{}{}

		if len(route.ForwardTags) > 0 {
			tags := make(map[string]struct{}, len(route.ForwardTags))
			for _, t := range route.ForwardTags {
				tags[strings.ToLower(t.Name)] = struct{}{}
			}
			src := route.SourceChannel.String()
			for _, existing := range channelTags[src] {
				for tag := range tags {
					if _, shared := existing[tag]; shared {
						return fmt.Errorf("forward tag %q is shared by two routes on source channel %s; the same message would be forwarded twice", tag, src)
					}
				}
			}
			channelTags[src] = append(channelTags[src], tags)
		}
	}
	return nil
}

func validateRoute(route *Route) error {
	if route.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if route.SourceChannel.ID == 0 && route.SourceChannel.Name == "" {
		return fmt.Errorf("source_channel must not be empty")
	}
	if route.DestinationChannel <= 0 {
		return fmt.Errorf("destination_channel must be a positive id")
	}
	if !route.ForwardEverything && len(route.ForwardTags) == 0 {
		return fmt.Errorf("forward_everything is false but no forward_tags are set")
	}
	if route.MentionEveryone && route.HasMentionOverride() {
		return fmt.Errorf("mention_everyone and mention_override must not be set at the same time")
	}

	for _, t := range route.ForwardTags {
		if !strings.HasPrefix(t.Name, "#") {
			return fmt.Errorf("forward tag %q must start with #", t.Name)
		}
	}
	excluded := make(map[string]struct{}, len(route.ExcludedTags))
	for _, t := range route.ExcludedTags {
		if !strings.HasPrefix(t.Name, "#") {
			return fmt.Errorf("excluded tag %q must start with #", t.Name)
		}
		excluded[strings.ToLower(t.Name)] = struct{}{}
	}
	for _, t := range route.ForwardTags {
		if _, clash := excluded[strings.ToLower(t.Name)]; clash {
			return fmt.Errorf("tag %q appears in both forward_tags and excluded_tags", t.Name)
		}
	}
	for tag, roles := range route.MentionOverride {
		if !strings.HasPrefix(tag, "#") {
			return fmt.Errorf("mention_override tag %q must start with #", tag)
		}
		if len(roles) == 0 {
			return fmt.Errorf("mention_override tag %q maps to no roles", tag)
		}
	}
	return nil
}

// HealthcheckIntervalDuration returns the tick interval as a duration.
func (g GlobalConfig) HealthcheckIntervalDuration() time.Duration {
	return time.Duration(g.HealthcheckInterval) * time.Second
}

// RecoveryDelayDuration returns the inter-message replay delay as a duration.
func (g GlobalConfig) RecoveryDelayDuration() time.Duration {
	return time.Duration(g.RecoveryInterMessageDelay) * time.Second
}
