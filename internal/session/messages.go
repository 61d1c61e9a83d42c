package session

import (
	"fmt"
	"strings"
)

const (
	markerOpen       = "❗"
	markerResolved   = "✅"
	markerUnresolved = "⏹️"
	markerBanAppeal  = "🚷"
	markerDelivered  = "📨"
	markerMuted      = "🔇"
	markerInvalid    = "❌"

	relayPrefix        = ">>> "
	continuationPrefix = ">>> ... "

	colorSuccess = 0x00ff00
	colorDenied  = 0xff0000
	colorButton  = 0x7270f8

	invisibleCharacter = "⠀"
)

var dividerLine = "__" + strings.Repeat(" ", 70) + "__"

const (
	messageCooldownFormat = "You've recently left a report room. Please wait %d more seconds before joining again.\n" +
		"If your message was something like 'goodbye', 'thanks', or similar, we appreciate it, " +
		"but it is not necessary to open another room."
	messageSetupFailed       = "WARNING: There's been an error. Setup will not continue."
	messageBlocked           = "There has been some kind of error in joining that server's report room. Please contact the mods directly."
	messageNoSharedGuild     = "I couldn't find any common guilds between us. Frankly, I don't know how you're messaging me. Have a nice day."
	messageSingleNotSetup    = "We only share one guild, but that guild has not setup their report room yet. Please tell the mods to run `/setup` in some channel."
	messageSelectedNotSetup  = "That server has not setup their report room yet. Please contact the mods directly."
	messageGuildSelectExpiry = "You've waited too long. Module closing."
	messageGuildSelectBad    = "I didn't understand which guild you responded with. Please respond with only a single number."
	messageReportKindFormat  = "Hello, you are trying to start a support ticket/report with the mods of %s.\n\n**Please push one of the below buttons.**"
	messageReportKindExpiry  = "I did not receive a response from you. Please try to send your message again"

	messageNotSetupFormat   = "The report room for this server is not properly setup. Please directly message the mods. (%s)"
	reasonNoContainer       = "I can't find the report channel"
	reasonNoMetaID          = "I can't find the ID for the channel to send info messages in"
	reasonNoMetaThread      = "I can't find the channel to send info messages in their forum channel"
	reasonNoPermission      = "I don't have permission to send messages in the report room."
	messagePermissionFormat = "WARNING: %s tried to join the report room, but in order to open a report here, I need the " +
		"`Create Public Threads` permission in this channel. Please give me that permission and tell the user to try again."
	messageContainerLocked = "Sorry, actually I can't send messages to the channel the mods had setup for me anymore. " +
		"Please tell them to check the permissions on the channel or to run the setup command again."

	messageEntryFormat      = "The user %s has entered the report room. Reply in the thread to continue. (@here)"
	messageEntryStaffTest   = "@ here ~ exempted for staff testing"
	messageBanAppealBanner  = "**__BAN APPEAL__**\n"
	messageThreadNameFormat = "%s report %s"
	messageNoSeed           = "NOTE: The user has not sent a message yet."

	messageDoneRetired = "This used to be a command to close the room, but it has been changed to `close` instead of `done` " +
		"to avoid accidental closure of rooms by people trying to actually send the word `done` to the reporter. " +
		"For now, I've disabled the use of the word."
	messageUserUnreachable  = "I couldn't send a message to the user (maybe they blocked me or left the server). I will close the chat."
	messageStaffUnreachable = "I couldn't send your message to the mods. Maybe they've locked me out of the report channel. " +
		"I will close this chat."
	messageCloseError       = "WARNING: There's been some kind of error. I will close the room. Please try again."
	messageOpenFailed       = "WARNING: There's been an error and I couldn't open the report room. Please try again."
	messageClosed           = "Thank you, I have closed the room."
	messageClosedThreadNote = " Messages in this thread will no longer be sent to the user"

	messageOpenFailedStaffFormat = "WARNING: %s tried to open a report, but I hit an error while creating the room. They have been asked to try again."

	messageGateDeniedFormat = "%s came to me with the following message:```%s```" +
		"I assumed they still need a member role, so I pointed them to onboarding and did not open a report."

	messageBotLoaded       = "Bot loaded"
	messageGuildJoinedText = "I've joined a new server."
)

func instructionsText(exemptPrefixes []string) string {
	return "I'll relay any of their messages to this channel.\n" +
		"   \\- Any messages you type will be sent to the user.\n" +
		"   \\- To end this chat, type `end` or `close`.\n" +
		"   \\- Typing `finish` will close the chat and also add a ✅ emoji to the thread, marking it as \"Resolved\".\n" +
		"   \\- To *not* send a certain message, start the message with `_`.\n" +
		"   \\- For example, `Hello` would be sent, but `_What should we do` or bot commands would not be sent.\n" +
		"      Currently exempted bot prefixes:\n" +
		"      `" + strings.Join(exemptPrefixes, "`   `") + "`\n" + invisibleCharacter
}

func separatorText() string {
	return "**Report starts here\n" + dividerLine + "**\n\n\n" + invisibleCharacter
}

func closedNotice(onStaffThread bool) string {
	note := ""
	if onStaffThread {
		note = messageClosedThreadNote
	}
	return "**" + invisibleCharacter + "\n\n" + dividerLine + "**\n**" + messageClosed + note + "**"
}

func cooldownMessage(seconds int) string {
	return fmt.Sprintf(messageCooldownFormat, seconds)
}

func notSetupMessage(reason string) string {
	return fmt.Sprintf(messageNotSetupFormat, reason)
}

func moderatorPrefix(label int, reveal bool, mention string) string {
	if reveal {
		return fmt.Sprintf(">>> **Moderator %d (%s):** ", label, mention)
	}
	return fmt.Sprintf(">>> **Moderator %d:** ", label)
}

func userPrefix(mention string) string {
	return relayPrefix + mention + ": "
}
