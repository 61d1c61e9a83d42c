package locale

const (
	MsgGuildSelect = "Hello, thank you for messaging me. Please select which server you want to connect to. " +
		"To do this, reply with the `number` before your server (for example, you can reply with the single number `3`.)"

	MsgButtonReport        = "I want to report a user"
	MsgButtonAccount       = "I have a question about my account"
	MsgButtonServer        = "I have a question about the server"
	MsgButtonCancel        = "Nevermind, cancel this menu."
	MsgFirstMessageAck     = "I will send your first message. Make sure all the messages you send receive a '📨' reaction."
	MsgCancelAck           = "Canceling report"
	MsgCheckDirectMessages = "Please read the private message from %s"

	MsgConnected = "You are now connected to the moderators of the server, and I've sent your first message. " +
		"The moderators will see any messages or images you send, and you'll receive messages and images from the mods too. " +
		"It may take a while for the moderators to see your report, so please be patient.\n\n" +
		"When you are done talking to the mods, please type `end` or `close`, and then the chat will close."

	MsgConnectedAppeal = "You are now connected to the moderators of the server, and I've notified them that " +
		"you're trying to appeal a ban. The moderators will see any messages or images you send, and you'll receive " +
		"messages and images from the mods too. It may take a while for the moderators to see your appeal, so please be patient.\n\n" +
		"When you are done talking to the mods, please type `end` or `close`, and then the chat will close."

	MsgConnectedWaiting = "You are now connected to the moderators of the server. Send your message here and I will pass it on. " +
		"The moderators will see any messages or images you send, and you'll receive messages and images from the mods too. " +
		"It may take a while for the moderators to see your report, so please be patient.\n\n" +
		"When you are done talking to the mods, please type `end` or `close`, and then the chat will close."

	MsgOnboardingRequired = "Before you can contact the staff of %s, please finish getting started there: " +
		"you need one of the server's member roles first."
)

var translations = map[string]map[string]string{
	MsgGuildSelect: {
		"es": "Hola, gracias por enviarme un mensaje. Por favor, selecciona a qué servidor quieres conectarte. " +
			"Para hacer esto, responda con el `número` antes de su servidor (por ejemplo, puede responder sólo con el número `3`)",
		"ja": "こんにちは、メッセージありがとうございます。どのサーバーに接続したいかを選択してください。" +
			"これを行うには、以下のサーバーの一つの名前の前にある数字を書いて返信してください " +
			"(例えば、`3` という単一の数字で返信したら接続できます)。",
	},
	MsgButtonReport: {
		"es": "Quiero reportar a un usuario",
		"ja": "他のユーザーを通報したい",
	},
	MsgButtonAccount: {
		"es": "Tengo una pregunta sobre mi cuenta",
		"ja": "自分のアカウントについて質問がある",
	},
	MsgButtonServer: {
		"es": "Tengo una pregunta sobre el servidor",
		"ja": "サーバーについて質問がある",
	},
	MsgButtonCancel: {
		"es": "Olvídalo, cancela este menú",
		"ja": "なんでもない、このメニューを閉じてください",
	},
	MsgFirstMessageAck: {
		"es": "Enviaré tu primer mensaje. Asegúrate de que todos los mensajes que envíes reciban una reacción '📨'.",
		"ja": "あなたの最初のメッセージを送信しました。送信するすべてのメッセージが '📨' のリアクションが付くことを確認してください。",
	},
	MsgCancelAck: {
		"es": "Reporte cancelado",
		"ja": "通報をキャンセルしました",
	},
	MsgCheckDirectMessages: {
		"es": "Por favor, lea el mensaje privado de %s.",
		"ja": "%sからのメッセージをご確認ください。",
	},
	MsgConnected: {
		"es": "Ahora estás conectado con los moderadores del servidor, y les he enviado tu primer mensaje. " +
			"Los moderadores verán los mensajes o imágenes que envíes, y también recibirás mensajes y imágenes de los moderadores. " +
			"Los moderadores pueden tardar un poco en ver tu reporte, así que ten paciencia.\n\n" +
			"Cuando hayas terminado de hablar con los moderadores, escribe `end` o `close` y el chat se cerrará.",
		"ja": "サーバーの管理者に接続しました。またあなたが最初に送信したメッセージも管理者に送られています。" +
			"ここで送信されたメッセージや画像は管理者に送られ、管理者からのメッセージもここに届きます。" +
			"お返事に時間がかかる場合がございますので、ご了承ください。\n\n" +
			"管理者への通報が終了したら、`end`または`close`とタイプしてください。",
	},
	MsgConnectedAppeal: {
		"es": "Ahora estás conectado con los moderadores del servidor, y les he notificado que estás intentando apelar una expulsión. " +
			"Los moderadores verán los mensajes o imágenes que envíes, y también recibirás mensajes y imágenes de los moderadores. " +
			"Los moderadores pueden tardar un poco en ver tu apelación, así que ten paciencia.\n\n" +
			"Cuando hayas terminado de hablar con los moderadores, escribe `end` o `close` y el chat se cerrará.",
		"ja": "サーバーの管理者に接続しました。またこれによりバンの解除申請が管理者に通知されました。" +
			"ここで送信されたメッセージや画像は管理者に送られ、管理者からのメッセージもここに届きます。" +
			"お返事に時間がかかる場合がございますので、ご了承ください。\n\n" +
			"申請が終了したら、`end`または`close`とタイプしてください。",
	},
	MsgConnectedWaiting: {
		"es": "Ahora estás conectado con los moderadores del servidor. Envía tu mensaje aquí y se lo haré llegar. " +
			"Los moderadores verán los mensajes o imágenes que envíes, y también recibirás mensajes y imágenes de los moderadores. " +
			"Los moderadores pueden tardar un poco en ver tu reporte, así que ten paciencia.\n\n" +
			"Cuando hayas terminado de hablar con los moderadores, escribe `end` o `close` y el chat se cerrará.",
		"ja": "サーバーの管理者に接続しました。ここにメッセージを送信すると管理者に届けます。" +
			"ここで送信されたメッセージや画像は管理者に送られ、管理者からのメッセージもここに届きます。" +
			"お返事に時間がかかる場合がございますので、ご了承ください。\n\n" +
			"管理者への通報が終了したら、`end`または`close`とタイプしてください。",
	},
	MsgOnboardingRequired: {
		"es": "Antes de contactar al staff de %s, por favor termina de configurar tu cuenta allí: " +
			"primero necesitas uno de los roles de miembro del servidor.",
		"ja": "%sのスタッフに連絡する前に、サーバーの案内に従ってメンバーロールを取得してください。",
	},
}
