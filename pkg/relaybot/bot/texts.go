package bot

// User-facing messages.
const (
	textStart = "👋 Hi! Send me a Telegram message link and I will fetch it for you, " +
		"even from chats with restricted saving.\n\n" +
		"Private chats need a session: use /login first.\n" +
		"Send /help to see everything I can do."

	textHelp = "**Commands**\n" +
		"/login - log in with your Telegram account\n" +
		"/logout - delete your session\n" +
		"/batch - collect several links, then /done to process them\n" +
		"/cancel - cancel the running process\n" +
		"/dl <url> - download a YouTube video\n" +
		"/adl <url> - download YouTube audio\n" +
		"/join <invite link> - make your session join a chat\n" +
		"/settings - show your settings\n" +
		"/setchat <chat id> - send results to another chat\n" +
		"/setcaption <text> - add a custom caption\n" +
		"/setrename <tag> - add a tag to file names\n" +
		"/setclean <words> - remove words from captions and names\n" +
		"/reset - restore default settings\n" +
		"/myplan - show your plan\n" +
		"/transfer <user id> - give your premium to another user"

	textHelpOwner = "\n\n**Owner**\n" +
		"/add <user id> [n unit] - add premium (default 1 month)\n" +
		"/rem <user id> - remove premium\n" +
		"/freepass <user id> [n unit] - lift the cooldown (default 3 hours)\n" +
		"/stats - usage statistics\n" +
		"/broadcast <text> - message every user"

	textBanned        = "You are Banned. Contact -- %s"
	textJoinChannel   = "Join our channel to use the bot"
	textJoinButton    = "Join Now..."
	textSubscribeFail = "Something Went Wrong. Contact us %s..."

	textNoLink          = "❌ No valid link found in message"
	textFreeUnavailable = "Free service is currently not available. Upgrade to premium for access."
	textCooldown        = "Please wait %d seconds(s) before sending another link. Alternatively, purchase premium for instant access.\n\n> Hey 👋 You can suck owners dick to use the bot free for 3 hours without any time limit."
	textOngoing         = "You already have an ongoing process. Please wait for it to finish or cancel it with /cancel."
	textProcessing      = "Processing..."
	textFloodWait       = "Try again after %d seconds due to floodwait from Telegram."
	textLinkError       = "Link: `%s`\n\n**Error:** %s"
	textNoSession       = "❌ No session found. Use /login to log in with your account first."
	textNotFound        = "❌ Message not found. Please check the link."
	textEmpty           = "❌ Invalid message or empty content"
	textInvalidLink     = "❌ Invalid link format"

	textCancelled      = "✅ Process cancelled successfully!"
	textNothingToCancel = "❌ No active process to cancel."

	textBatchOff      = "Batch mode disabled!"
	textBatchOn       = "Batch mode enabled!\nSend me links one by one.\nWhen done, send /done to start the process.\nTo cancel, send /cancel"
	textNoBatch       = "No active batch process. Use /batch to start one."
	textNoLinks       = "No links were provided!"
	textBatchStart    = "Processing batch..."
	textBatchAdded    = "Link added to batch!"
	textBatchFull     = "❌ Batch limit reached (%d links). Send /done to start."
	textBatchLinkFail = "Error processing %s: %s"

	textJoined        = "Successfully joined the Channel"
	textAlreadyMember = "User is already a participant."
	textJoinInvalid   = "Could not join. Maybe your link is expired or Invalid."
	textJoinRequested = "Join request sent. Wait for an admin to approve it."
	textJoinFailed    = "Could not join, try joining manually."
	textJoinUsage     = "Usage: /join <invite link>"

	textAskPhone      = "Please enter your phone number along with the country code. \nExample: +19876543210"
	textSendingOTP    = "📲 Sending OTP..."
	textAskOTP        = "Please check for an OTP in your official Telegram account. Once received, enter the OTP in the following format: \nIf the OTP is `12345`, please enter it as `1 2 3 4 5`."
	textAsk2FA        = "Your account has two-step verification enabled. Please enter your password."
	textOTPTimeout    = "⏰ Time limit of 10 minutes exceeded. Please restart the session."
	text2FATimeout    = "⏰ Time limit of 5 minutes exceeded. Please restart the session."
	textLoginCancel   = "❌ Login cancelled."
	textBadPassword   = "❌ Invalid password. Please restart the session."
	textBadAPI        = "❌ Invalid API ID/Hash combination. Please check your configuration."
	textBadPhone      = "❌ Invalid phone number format. Please try again."
	textBadOTP        = "❌ Invalid OTP code. Please try again."
	textOTPExpired    = "❌ OTP code expired. Please request a new one."
	textLoginFlood    = "❌ Too many attempts. Please wait %d seconds before trying again."
	textSignUp        = "❌ This phone number has no Telegram account."
	textLoginFailed   = "❌ An unexpected error occurred. Please try again later."
	textLoginOK       = "✅ Login successful!"
	textLoggedOut     = "✅ Your session data and files have been cleared from memory and disk."
	textLoggedOutNone = "✅ Logged out with flag -m"

	textYTUsage    = "Usage: /%s <YouTube link>"
	textYTStart    = "**__Starting download...__**"
	textYTUpload   = "**__Starting Upload...__**"
	textYTTooLong  = "❌ Videos longer than %s are only available to premium users."
	textYTTooLarge = "❌ Files larger than %s are only available to premium users."
	textYTFailed   = "**__An error occurred: %s__**"

	textSettings    = "**Your settings**\nTarget chat: %s\nCaption: %s\nRename tag: %s\nClean words: %s"
	textSetChatOK   = "✅ Target chat set to `%d`."
	textSetChatBad  = "❌ Usage: /setchat <chat id>"
	textCaptionOK   = "✅ Caption saved."
	textCaptionOff  = "✅ Caption removed."
	textRenameOK    = "✅ Rename tag saved."
	textRenameOff   = "✅ Rename tag removed."
	textCleanOK     = "✅ %d clean word(s) saved."
	textCleanOff    = "✅ Clean words removed."
	textResetOK     = "✅ Settings restored to defaults."
	textNotSet      = "not set"
	textStoreFailed = "❌ Could not save your settings. Please try again later."

	textPlanOwner   = "👑 You are an owner: unlimited access."
	textPlanPremium = "💎 **Premium**\nExpires: %s (%s left)"
	textPlanFree    = "🆓 **Free plan**\nBatch limit: %d links\nCooldown: %s between links"
	textPlanPass    = "\nFree pass active until %s"

	textTransferUsage = "Usage: /transfer <user id>"
	textTransferNone  = "❌ You have no premium plan to transfer."
	textTransferSelf  = "❌ You cannot transfer to yourself."
	textTransferOK    = "✅ Premium transferred to `%d` (expires %s)."
	textTransferGot   = "🎁 You received a premium plan from `%d`. It expires %s."

	textOwnerOnly    = "❌ This command is only available to owners."
	textAddUsage     = "Usage: /add <user id> [n unit], e.g. /add 123 1 month"
	textAddOK        = "✅ `%d` is premium until %s."
	textAddNotice    = "💎 You are now premium until %s. Enjoy!"
	textRemUsage     = "Usage: /rem <user id>"
	textRemOK        = "✅ Premium removed from `%d`."
	textRemNone      = "❌ `%d` has no premium plan."
	textPassUsage    = "Usage: /freepass <user id> [n unit]"
	textPassOK       = "✅ `%d` has a free pass until %s."
	textPassNotice   = "🎉 You received a free pass until %s. No cooldown until then!"
	textBadDuration  = "❌ Invalid duration: %s"
	textStats        = "📊 **Stats**\nUsers: %d\nPremium users: %d\nMessages relayed: %d\nData relayed: %s\nYouTube downloads: %d\nLogins: %d\nActive processes: %d"
	textBroadcastUse = "Usage: /broadcast <text>"
	textBroadcastRun = "📣 Broadcasting to %d users..."
	textBroadcastEnd = "📣 Broadcast finished: %d sent, %d failed."
	textExpired      = "Your premium plan has expired."
)
