package main

import (
	"fmt"
	"strconv"

	"github.com/VitaminP8/commentree/internal/section"
	"github.com/VitaminP8/commentree/internal/tree"
	"github.com/spf13/cobra"
)

// searchDepth bounds how deep locate expands looking for a target comment.
const searchDepth = 32

var replyParent int64

var replyCmd = &cobra.Command{
	Use:   "reply <post> <text>",
	Short: "Post a comment, or a reply with --parent",
	Args:  cobra.ExactArgs(2),
	RunE:  runReply,
}

var voteCmd = &cobra.Command{
	Use:   "vote <post> <comment-id> <+1|-1>",
	Short: "Vote on a comment",
	Args:  cobra.ExactArgs(3),
	RunE:  runVote,
}

var unvoteCmd = &cobra.Command{
	Use:   "unvote <post> <comment-id>",
	Short: "Retract your vote on a comment",
	Args:  cobra.ExactArgs(2),
	RunE:  runUnvote,
}

func init() {
	replyCmd.Flags().Int64Var(&replyParent, "parent", 0, "Id of the comment to reply to")
}

func runReply(cmd *cobra.Command, args []string) error {
	api, closeBackend, err := openBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	ctx := viewerContext(cmd.Context())
	s := section.New(args[0], api, section.Config{PageSize: cfg.PageSize}, logger)

	parent := tree.Root
	if replyParent != 0 {
		if err := locate(ctx, s, replyParent, searchDepth); err != nil {
			return err
		}
		parent = tree.Under(replyParent)
	}

	node, err := s.Reply(ctx, parent, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created #%d under %s\n", node.ID, parent)
	return nil
}

func runVote(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid comment id %q", args[1])
	}
	value, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid vote %q", args[2])
	}

	api, closeBackend, err := openBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	ctx := viewerContext(cmd.Context())
	s := section.New(args[0], api, section.Config{PageSize: cfg.PageSize}, logger)
	if err := locate(ctx, s, id, searchDepth); err != nil {
		return err
	}

	node, err := s.Vote(ctx, id, value)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "#%d rating %+d\n", node.ID, node.SumRating)
	return nil
}

func runUnvote(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid comment id %q", args[1])
	}

	api, closeBackend, err := openBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	ctx := viewerContext(cmd.Context())
	s := section.New(args[0], api, section.Config{PageSize: cfg.PageSize}, logger)
	if err := locate(ctx, s, id, searchDepth); err != nil {
		return err
	}

	node, err := s.RetractVote(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "#%d rating %+d\n", node.ID, node.SumRating)
	return nil
}
